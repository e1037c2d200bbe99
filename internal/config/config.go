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

// Package config holds the process-wide tunables read by every other
// package in this module. An AllocConfig is built once by the embedding
// application and treated as read-only for the lifetime of the run.
package config

import "time"

// AllocConfig bundles the process-wide minima and tunables the
// allocator, tenants, and controller consult. It is initialized once
// at startup; nothing in this module mutates it after construction.
type AllocConfig struct {
	// MinCacheSize, MinDBRCU, MinDBWCU, MinNetBW are the process-wide
	// per-tenant floors enforced at apply time (never at construction).
	MinCacheSize uint64
	MinDBRCU     float64
	MinDBWCU     float64
	MinNetBW     float64

	// PolicyAllocTotalNetBW, when set, pools net_bw across tenants
	// under a single Σ net_bw ≤ Σ base.net_bw constraint; otherwise
	// each tenant keeps its own base.net_bw untouched by the allocator.
	PolicyAllocTotalNetBW bool

	// SmoothingWindow (W) bounds the number of adjacent EpochStat
	// deltas a tenant aggregates before deriving an MRC/demand.
	SmoothingWindow int

	// MRCSalt records the run's miss-ratio salt. The salt each tenant
	// adds to its derived miss ratios before clamping to [0, 1] is the
	// mrcSalt argument of tenant.New; this field is not read there.
	MRCSalt float64

	// BisectionTolerance bounds the allocator's search on the fairness
	// metric φ; CacheDeltaGranularity additionally stops the search
	// once candidate cache differences fall below it.
	BisectionTolerance   float64
	CacheDeltaGranularity uint64

	// MaxCacheRelocEachRound bounds how much cache a gradual apply may
	// move in a single round. BoostPollFreq records the run's warm-cache
	// poll interval; the controller's ApplyBoost and ApplyGradual take
	// their poll interval as an argument and do not read this field.
	MaxCacheRelocEachRound uint64
	BoostPollFreq          time.Duration

	// AllocApplyThreshold gates an allocation: skip apply if the new
	// improve_ratio doesn't clear the previous one by this much. A
	// zero value disables the gate.
	AllocApplyThreshold float64

	// CacheWarmThreshold is the default fraction used by IsCacheWarm.
	CacheWarmThreshold float64
}

// DefaultAllocConfig returns sane defaults matching the values the
// original implementation hard-codes (0.97 warm threshold, poll_freq
// of one second, etc.).
func DefaultAllocConfig() AllocConfig {
	return AllocConfig{
		MinCacheSize:           0,
		MinDBRCU:               0,
		MinDBWCU:               0,
		MinNetBW:               0,
		PolicyAllocTotalNetBW:  false,
		SmoothingWindow:        1,
		MRCSalt:                0,
		BisectionTolerance:     1e-4,
		CacheDeltaGranularity:  1 << 20, // 1 MiB
		MaxCacheRelocEachRound: 16 << 20,
		BoostPollFreq:          time.Second,
		AllocApplyThreshold:    0,
		CacheWarmThreshold:     0.97,
	}
}
