// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workload

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"hopperalloc/internal/kvcodec"
	"hopperalloc/internal/offset"
)

// StaticWorkload describes one fixed-parameter phase: key/value sizes,
// a working-set key count, a write ratio, and an offset distribution.
type StaticWorkload struct {
	KeySize     int
	ValSize     int
	NumKeys     uint64
	WriteRatio  float64
	HasWriteRatio bool
	Distrib     Distrib
	HasDistrib  bool
}

func (w StaticWorkload) Copy() StaticWorkload { return w }

func (w StaticWorkload) String() string {
	fields := []string{
		fmt.Sprintf("k=%d", w.KeySize),
		fmt.Sprintf("v=%d", w.ValSize),
		fmt.Sprintf("n=%d", w.NumKeys),
	}
	if w.HasWriteRatio {
		fields = append(fields, fmt.Sprintf("w=%v", w.WriteRatio))
	}
	if w.HasDistrib {
		fields = append(fields, fmt.Sprintf("d=%s", w.Distrib))
	}
	return strings.Join(fields, ",")
}

// ParseStaticWorkload parses the grammar
// "k=<u32>,v=<u32>,n=<u64>[,w=<f32>][,d=<distrib>]". allowDup permits
// re-specifying a field already set (used when overlaying a clone).
func ParseStaticWorkload(s string, base *StaticWorkload, allowDup bool) (StaticWorkload, error) {
	var w StaticWorkload
	if base != nil {
		w = *base
	}
	seen := map[string]bool{}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return StaticWorkload{}, fmt.Errorf("workload: malformed field %q", field)
		}
		k, v := kv[0], kv[1]
		switch k {
		case "n", "num_keys":
			if !allowDup && seen["n"] {
				return StaticWorkload{}, fmt.Errorf("workload: duplicate field n")
			}
			seen["n"] = true
			nf, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return StaticWorkload{}, fmt.Errorf("workload: n=%q: %w", v, err)
			}
			w.NumKeys = uint64(nf)
		case "k", "key_size":
			if !allowDup && seen["k"] {
				return StaticWorkload{}, fmt.Errorf("workload: duplicate field k")
			}
			seen["k"] = true
			n, err := strconv.Atoi(v)
			if err != nil {
				return StaticWorkload{}, fmt.Errorf("workload: k=%q: %w", v, err)
			}
			w.KeySize = n
		case "v", "val_size":
			if !allowDup && seen["v"] {
				return StaticWorkload{}, fmt.Errorf("workload: duplicate field v")
			}
			seen["v"] = true
			n, err := strconv.Atoi(v)
			if err != nil {
				return StaticWorkload{}, fmt.Errorf("workload: v=%q: %w", v, err)
			}
			w.ValSize = n
		case "w", "write_ratio":
			if !allowDup && seen["w"] {
				return StaticWorkload{}, fmt.Errorf("workload: duplicate field w")
			}
			seen["w"] = true
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return StaticWorkload{}, fmt.Errorf("workload: w=%q: %w", v, err)
			}
			w.WriteRatio = f
			w.HasWriteRatio = true
		case "d", "distrib":
			if !allowDup && seen["d"] {
				return StaticWorkload{}, fmt.Errorf("workload: duplicate field d")
			}
			seen["d"] = true
			d, err := parseDistrib(v)
			if err != nil {
				return StaticWorkload{}, err
			}
			w.Distrib = d
			w.HasDistrib = true
		default:
			return StaticWorkload{}, fmt.Errorf("workload: unknown field %q", k)
		}
	}
	return w, nil
}

func parseDistrib(v string) (Distrib, error) {
	switch {
	case v == "seq":
		return Distrib{Kind: DistribSeq}, nil
	case v == "unif":
		return Distrib{Kind: DistribUnif}, nil
	case strings.HasPrefix(v, "zipf:"):
		theta, err := strconv.ParseFloat(v[len("zipf:"):], 64)
		if err != nil {
			return Distrib{}, fmt.Errorf("workload: zipf theta %q: %w", v, err)
		}
		return Distrib{Kind: DistribZipf, Theta: theta}, nil
	case strings.HasPrefix(v, "scan:"):
		parts := strings.Split(v, ":")
		if len(parts) != 3 {
			return Distrib{}, fmt.Errorf("workload: malformed scan distrib %q", v)
		}
		theta, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return Distrib{}, fmt.Errorf("workload: scan theta %q: %w", v, err)
		}
		maxRange, err := strconv.Atoi(parts[2])
		if err != nil {
			return Distrib{}, fmt.Errorf("workload: scan max_range %q: %w", v, err)
		}
		return Distrib{Kind: DistribScan, Theta: theta, MaxRange: maxRange}, nil
	default:
		return Distrib{}, fmt.Errorf("workload: unknown distrib %q", v)
	}
}

func (w StaticWorkload) BuildReqGen() []ReqGenEngine {
	return []ReqGenEngine{NewOffsetReqGenEngine(w, 0)}
}

// OffsetReqBuilder turns raw offsets into Req values per the
// write_ratio Bernoulli draw. Scan writes degrade to a single-key
// write at offsets[0] rather than reproducing the source's
// zip(val, val) bug (spec.md §9).
type OffsetReqBuilder struct {
	workload StaticWorkload
	params   kvcodec.FormatParams
}

func NewOffsetReqBuilder(w StaticWorkload) (*OffsetReqBuilder, error) {
	p, err := kvcodec.GetFormatParams(w.KeySize, w.ValSize)
	if err != nil {
		return nil, err
	}
	return &OffsetReqBuilder{workload: w, params: p}, nil
}

func (b *OffsetReqBuilder) String() string { return b.workload.String() }

// MakeReq builds the Req for a single offset draw, off, which is
// either a scalar Offset.One or a multi-key Offset.Many (scan).
func (b *OffsetReqBuilder) MakeReq(rng *rand.Rand, off offset.Offset) Req {
	isWrite := rng.Float64() < b.workload.WriteRatio
	if off.Many == nil {
		o := off.One
		key := kvcodec.MakeKey(int(o), b.params)
		if isWrite {
			val := kvcodec.MakeVal(int(o), b.params)
			return Req{Keys: []string{key}, Val: &val, Offsets: []uint64{o}}
		}
		return Req{Keys: []string{key}, Offsets: []uint64{o}}
	}
	if isWrite {
		o := off.Many[0]
		key := kvcodec.MakeKey(int(o), b.params)
		val := kvcodec.MakeVal(int(o), b.params)
		return Req{Keys: []string{key}, Val: &val, Offsets: []uint64{o}}
	}
	keys := make([]string, len(off.Many))
	for i, o := range off.Many {
		keys[i] = kvcodec.MakeKey(int(o), b.params)
	}
	return Req{Keys: keys, Offsets: off.Many}
}

func buildOffsetGen(w StaticWorkload) (offset.Generator, error) {
	if !w.HasDistrib {
		return nil, fmt.Errorf("workload: static workload has no distribution")
	}
	switch w.Distrib.Kind {
	case DistribSeq:
		return offset.NewSeq(w.NumKeys), nil
	case DistribUnif:
		return offset.NewUniform(w.NumKeys), nil
	case DistribZipf:
		return offset.NewZipf(w.NumKeys, w.Distrib.Theta), nil
	case DistribScan:
		return offset.NewScanRange(w.NumKeys, w.Distrib.Theta, w.Distrib.MaxRange), nil
	default:
		return nil, fmt.Errorf("workload: unrecognized distribution")
	}
}

// OffsetReqGenEngine wraps an OffsetReqBuilder with offset management,
// emitting requests until untilElapsed seconds have passed (0 means
// unbounded).
type OffsetReqGenEngine struct {
	builder      *OffsetReqBuilder
	offsetGen    offset.Generator
	untilElapsed float64
	rng          *rand.Rand
	buildErr     error
}

func NewOffsetReqGenEngine(w StaticWorkload, untilElapsedSeconds float64) *OffsetReqGenEngine {
	b, err := NewOffsetReqBuilder(w)
	e := &OffsetReqGenEngine{untilElapsed: untilElapsedSeconds, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	if err != nil {
		e.buildErr = err
		return e
	}
	gen, genErr := buildOffsetGen(w)
	if genErr != nil {
		e.buildErr = genErr
		return e
	}
	e.builder = b
	e.offsetGen = gen
	return e
}

func (e *OffsetReqGenEngine) MakeReq() Req {
	off := e.offsetGen.NextOffset(e.rng)
	return e.builder.MakeReq(e.rng, off)
}

func (e *OffsetReqGenEngine) IsDone(elapsedSeconds float64) bool {
	return e.untilElapsed > 0 && elapsedSeconds >= e.untilElapsed
}

func (e *OffsetReqGenEngine) String() string { return e.builder.String() }
