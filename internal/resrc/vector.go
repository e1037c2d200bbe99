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

// Package resrc provides the immutable resource-vector value type and
// the per-epoch statistics snapshot the rest of the allocator is built
// on.
package resrc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vector is an immutable 4-tuple of fungible resources: cache memory
// in bytes, backing-store read units and write units per second, and
// network bandwidth in bytes per second. All arithmetic returns a new
// value; no method mutates its receiver.
type Vector struct {
	CacheSize uint64
	DBRcu     float64
	DBWcu     float64
	NetBw     float64
}

// Add returns the componentwise sum.
func (v Vector) Add(o Vector) Vector {
	return Vector{
		CacheSize: v.CacheSize + o.CacheSize,
		DBRcu:     v.DBRcu + o.DBRcu,
		DBWcu:     v.DBWcu + o.DBWcu,
		NetBw:     v.NetBw + o.NetBw,
	}
}

// Sub returns the componentwise difference. CacheSize saturates at
// zero rather than wrapping, since a negative cache size is not
// representable in the uint64 tuple.
func (v Vector) Sub(o Vector) Vector {
	cache := uint64(0)
	if v.CacheSize > o.CacheSize {
		cache = v.CacheSize - o.CacheSize
	}
	return Vector{
		CacheSize: cache,
		DBRcu:     v.DBRcu - o.DBRcu,
		DBWcu:     v.DBWcu - o.DBWcu,
		NetBw:     v.NetBw - o.NetBw,
	}
}

// Scale returns the componentwise product with a scalar.
func (v Vector) Scale(k float64) Vector {
	return Vector{
		CacheSize: uint64(math.Round(float64(v.CacheSize) * k)),
		DBRcu:     v.DBRcu * k,
		DBWcu:     v.DBWcu * k,
		NetBw:     v.NetBw * k,
	}
}

// ToVec marshals the vector to the allocator's internal float
// representation, [cache, rcu, wcu, net].
func (v Vector) ToVec() [4]float64 {
	return [4]float64{float64(v.CacheSize), v.DBRcu, v.DBWcu, v.NetBw}
}

// FromVec is the inverse of ToVec.
func FromVec(f [4]float64) Vector {
	return Vector{
		CacheSize: uint64(math.Round(f[0])),
		DBRcu:     f[1],
		DBWcu:     f[2],
		NetBw:     f[3],
	}
}

func (v Vector) String() string {
	return fmt.Sprintf("%s,%g,%g,%s", toHuman(float64(v.CacheSize), true), v.DBRcu, v.DBWcu, toHuman(v.NetBw, false))
}

// ParseVector parses the resource-string grammar
// "<cache>,<rcu>,<wcu>,<net>", each field accepting an optional
// K/M/G/Ki/Mi/Gi suffix. cache_size uses binary scale; the remaining
// fields use decimal scale.
func ParseVector(s string) (Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Vector{}, fmt.Errorf("resrc: expected 4 comma-separated fields, got %d", len(parts))
	}
	cache, err := ParseHuman(parts[0], true)
	if err != nil {
		return Vector{}, fmt.Errorf("resrc: cache_size: %w", err)
	}
	rcu, err := ParseHuman(parts[1], false)
	if err != nil {
		return Vector{}, fmt.Errorf("resrc: db_rcu: %w", err)
	}
	wcu, err := ParseHuman(parts[2], false)
	if err != nil {
		return Vector{}, fmt.Errorf("resrc: db_wcu: %w", err)
	}
	net, err := ParseHuman(parts[3], false)
	if err != nil {
		return Vector{}, fmt.Errorf("resrc: net_bw: %w", err)
	}
	return Vector{CacheSize: uint64(cache), DBRcu: rcu, DBWcu: wcu, NetBw: net}, nil
}

// ParseHuman parses a bare number or a number followed by a K/M/G
// (decimal, base 1000) or Ki/Mi/Gi (binary, base 1024) suffix. binary
// selects which scale a bare-letter suffix ("K", "M", "G") resolves
// to; an explicit "i" suffix always means binary regardless of the
// binary argument.
func ParseHuman(s string, binary bool) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("resrc: empty numeric string")
	}
	mult := 1.0
	numPart := s
	lower := strings.ToLower(s)
	suffixes := []struct {
		suffix string
		decMul float64
		binMul float64
	}{
		{"ki", 0, 1 << 10},
		{"mi", 0, 1 << 20},
		{"gi", 0, 1 << 30},
		{"k", 1e3, 1 << 10},
		{"m", 1e6, 1 << 20},
		{"g", 1e9, 1 << 30},
	}
	for _, sfx := range suffixes {
		if strings.HasSuffix(lower, sfx.suffix) {
			numPart = s[:len(s)-len(sfx.suffix)]
			if strings.HasSuffix(sfx.suffix, "i") || binary {
				if sfx.binMul != 0 {
					mult = sfx.binMul
				} else {
					mult = sfx.decMul
				}
			} else {
				mult = sfx.decMul
			}
			break
		}
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("resrc: invalid numeric value %q: %w", numPart, err)
	}
	return val * mult, nil
}

func toHuman(v float64, binary bool) string {
	base := 1000.0
	units := []string{"", "K", "M", "G"}
	if binary {
		base = 1024.0
		units = []string{"", "Ki", "Mi", "Gi"}
	}
	idx := 0
	for v >= base && idx < len(units)-1 {
		v /= base
		idx++
	}
	if idx == 0 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("%g%s", v, units[idx])
}
