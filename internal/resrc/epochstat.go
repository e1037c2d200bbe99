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

package resrc

import (
	"fmt"
	"time"
)

// EpochStat is a snapshot of per-interval counters read from a Cache
// Endpoint's stats() call. GhostHitCnt and GhostMissCnt are parallel
// vectors indexed by ghost tick; they grow monotonically across an
// experiment as the endpoint widens its ghost-cache sampling range.
type EpochStat struct {
	ReqCnt      uint64
	HitCnt      uint64
	MissCnt     uint64
	DBRcuConsump float64
	DBWcuConsump float64
	NetBwConsump float64

	DBRcuConsumpIfMiss float64
	NetBwConsumpIfMiss float64
	NetBwConsumpIfHit  float64

	GhostTicks    []uint64
	GhostHitCnt   []uint64
	GhostMissCnt  []uint64

	Timestamp time.Time
	Duration  time.Duration
}

// zipPadU64 right-pads the shorter of a, b by repeating its own last
// element until both slices share the longer length. This is the
// exact behavior ResrcStat.zip_pad implements in the original source:
// adopted as-is per the spec's documented open question, even though
// it is not obviously correct when the shorter vector is the newer
// snapshot.
func zipPadU64(a, b []uint64) ([]uint64, []uint64) {
	if len(a) == len(b) {
		return a, b
	}
	if len(a) < len(b) {
		padded := make([]uint64, len(b))
		copy(padded, a)
		last := uint64(0)
		if len(a) > 0 {
			last = a[len(a)-1]
		}
		for i := len(a); i < len(b); i++ {
			padded[i] = last
		}
		return padded, b
	}
	padded := make([]uint64, len(a))
	copy(padded, b)
	last := uint64(0)
	if len(b) > 0 {
		last = b[len(b)-1]
	}
	for i := len(b); i < len(a); i++ {
		padded[i] = last
	}
	return a, padded
}

// Sub computes b - a (receiver minus other), aligning ghost vectors
// per zipPadU64. Duration is b.Timestamp - a.Timestamp. Sub fails only
// if either ghost vector is empty on both sides.
func (b EpochStat) Sub(a EpochStat) (EpochStat, error) {
	if len(b.GhostHitCnt) == 0 && len(a.GhostHitCnt) == 0 {
		return EpochStat{}, fmt.Errorf("resrc: cannot subtract EpochStat with empty ghost vectors")
	}
	ghostHitA, ghostHitB := zipPadU64(a.GhostHitCnt, b.GhostHitCnt)
	ghostMissA, ghostMissB := zipPadU64(a.GhostMissCnt, b.GhostMissCnt)

	ticks := b.GhostTicks
	if len(a.GhostTicks) > len(ticks) {
		ticks = a.GhostTicks
	}

	ghostHit := make([]uint64, len(ghostHitB))
	ghostMiss := make([]uint64, len(ghostMissB))
	for i := range ghostHit {
		ghostHit[i] = subU64(ghostHitB[i], ghostHitA[i])
		ghostMiss[i] = subU64(ghostMissB[i], ghostMissA[i])
	}

	return EpochStat{
		ReqCnt:             subU64(b.ReqCnt, a.ReqCnt),
		HitCnt:             subU64(b.HitCnt, a.HitCnt),
		MissCnt:            subU64(b.MissCnt, a.MissCnt),
		DBRcuConsump:       b.DBRcuConsump - a.DBRcuConsump,
		DBWcuConsump:       b.DBWcuConsump - a.DBWcuConsump,
		NetBwConsump:       b.NetBwConsump - a.NetBwConsump,
		DBRcuConsumpIfMiss: b.DBRcuConsumpIfMiss - a.DBRcuConsumpIfMiss,
		NetBwConsumpIfMiss: b.NetBwConsumpIfMiss - a.NetBwConsumpIfMiss,
		NetBwConsumpIfHit:  b.NetBwConsumpIfHit - a.NetBwConsumpIfHit,
		GhostTicks:         ticks,
		GhostHitCnt:        ghostHit,
		GhostMissCnt:       ghostMiss,
		Timestamp:          b.Timestamp,
		Duration:           b.Timestamp.Sub(a.Timestamp),
	}, nil
}

// Add computes the componentwise sum of two EpochStat windows,
// aligning ghost vectors the same way Sub does. Used by the
// smoothing-window aggregation in Component I.
func (b EpochStat) Add(a EpochStat) EpochStat {
	ghostHitA, ghostHitB := zipPadU64(a.GhostHitCnt, b.GhostHitCnt)
	ghostMissA, ghostMissB := zipPadU64(a.GhostMissCnt, b.GhostMissCnt)

	ticks := b.GhostTicks
	if len(a.GhostTicks) > len(ticks) {
		ticks = a.GhostTicks
	}

	ghostHit := make([]uint64, len(ghostHitB))
	ghostMiss := make([]uint64, len(ghostMissB))
	for i := range ghostHit {
		ghostHit[i] = ghostHitB[i] + ghostHitA[i]
		ghostMiss[i] = ghostMissB[i] + ghostMissA[i]
	}

	return EpochStat{
		ReqCnt:             b.ReqCnt + a.ReqCnt,
		HitCnt:             b.HitCnt + a.HitCnt,
		MissCnt:            b.MissCnt + a.MissCnt,
		DBRcuConsump:       b.DBRcuConsump + a.DBRcuConsump,
		DBWcuConsump:       b.DBWcuConsump + a.DBWcuConsump,
		NetBwConsump:       b.NetBwConsump + a.NetBwConsump,
		DBRcuConsumpIfMiss: b.DBRcuConsumpIfMiss + a.DBRcuConsumpIfMiss,
		NetBwConsumpIfMiss: b.NetBwConsumpIfMiss + a.NetBwConsumpIfMiss,
		NetBwConsumpIfHit:  b.NetBwConsumpIfHit + a.NetBwConsumpIfHit,
		GhostTicks:         ticks,
		GhostHitCnt:        ghostHit,
		GhostMissCnt:       ghostMiss,
		Timestamp:          b.Timestamp,
		Duration:           b.Duration + a.Duration,
	}
}

// IsValid reports whether this window observed any reads at ghost
// tick 0. A window with no reads cannot derive an MRC or demand
// estimate and signals NoProgress to the caller.
func (e EpochStat) IsValid() bool {
	if len(e.GhostHitCnt) == 0 || len(e.GhostMissCnt) == 0 {
		return false
	}
	return e.GhostHitCnt[0]+e.GhostMissCnt[0] > 0
}

func subU64(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
