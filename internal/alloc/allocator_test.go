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

package alloc

import (
	"testing"

	"hopperalloc/internal/config"
	"hopperalloc/internal/mrc"
	"hopperalloc/internal/resrc"
	"hopperalloc/internal/tenant"
)

func flatCurve(cacheSize uint64, ratio float64) mrc.Curve {
	return mrc.New([]uint64{0, cacheSize, cacheSize * 2}, []float64{ratio, ratio, ratio})
}

func TestAllocateDRFEquallyConstrainedTenantsSplitEvenly(t *testing.T) {
	inputs := []TenantInput{
		{
			ID:         "a",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 100, DBWcu: 50, NetBw: 100},
			MRC:        flatCurve(1000, 0.1),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.5,
		},
		{
			ID:         "b",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 100, DBWcu: 50, NetBw: 100},
			MRC:        flatCurve(1000, 0.1),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.5,
		},
	}
	cfg := config.DefaultAllocConfig()
	cfg.CacheDeltaGranularity = 1

	res, err := Allocate(inputs, cfg, PolicyDRF)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	ids := sortedIDs(inputs)
	if len(ids) != 2 {
		t.Fatalf("sortedIDs returned %d ids, want 2", len(ids))
	}
	a, b := res.Alloc["a"], res.Alloc["b"]
	if a.CacheSize != b.CacheSize {
		t.Fatalf("identical tenants got different cache: a=%d b=%d", a.CacheSize, b.CacheSize)
	}
	if res.ImproveRatio < -0.5 {
		t.Fatalf("ImproveRatio implausibly low: %v", res.ImproveRatio)
	}
}

func TestAllocateRespectsCachePool(t *testing.T) {
	inputs := []TenantInput{
		{
			ID:         "a",
			Base:       resrc.Vector{CacheSize: 2000, DBRcu: 100, DBWcu: 50, NetBw: 100},
			MRC:        flatCurve(2000, 0.3),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.2,
		},
		{
			ID:         "b",
			Base:       resrc.Vector{CacheSize: 500, DBRcu: 50, DBWcu: 20, NetBw: 50},
			MRC:        flatCurve(500, 0.3),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.2,
		},
	}
	cfg := config.DefaultAllocConfig()
	cfg.CacheDeltaGranularity = 1

	res, err := Allocate(inputs, cfg, PolicyHARE)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	var totalCache uint64
	for _, in := range inputs {
		totalCache += in.Base.CacheSize
	}
	var used uint64
	for _, r := range res.Alloc {
		used += r.CacheSize
	}
	if used > totalCache {
		t.Fatalf("allocated %d bytes of cache, exceeds pool of %d", used, totalCache)
	}
}

func TestAllocateMemsharePoolsLeftoverCache(t *testing.T) {
	inputs := []TenantInput{
		{
			ID:         "steep",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 1000, DBWcu: 1000, NetBw: 1000},
			MRC:        mrc.New([]uint64{0, 500, 1000}, []float64{0.9, 0.5, 0.1}),
			Demand:     tenant.Demand{RCUIfMiss: 0.01, WCU: 0.01, NetIfMiss: 0.01},
			NetBwAlpha: 0.1,
		},
		{
			ID:         "flat",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 1000, DBWcu: 1000, NetBw: 1000},
			MRC:        flatCurve(1000, 0.01),
			Demand:     tenant.Demand{RCUIfMiss: 0.01, WCU: 0.01, NetIfMiss: 0.01},
			NetBwAlpha: 0.1,
		},
	}
	cfg := config.DefaultAllocConfig()
	cfg.CacheDeltaGranularity = 10

	res, err := Allocate(inputs, cfg, PolicyMemshare)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	var totalCache uint64
	for _, in := range inputs {
		totalCache += in.Base.CacheSize
	}
	var used uint64
	for _, r := range res.Alloc {
		used += r.CacheSize
	}
	if used > totalCache {
		t.Fatalf("pooled allocation used %d, exceeds total %d", used, totalCache)
	}
}

// TestAllocateDRFGivesSteepMRCTenantMoreCacheAndFlatTenantMoreRCU covers
// spec.md §8 scenario 2: of two equally-constrained tenants, the one
// whose MRC actually rewards cache must receive strictly more of it,
// and the flat-MRC tenant — which gets no benefit from extra cache and
// instead must cover a fixed miss ratio out of db_rcu — must receive
// strictly more db_rcu.
func TestAllocateDRFGivesSteepMRCTenantMoreCacheAndFlatTenantMoreRCU(t *testing.T) {
	inputs := []TenantInput{
		{
			ID:         "flat",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 200, DBWcu: 100, NetBw: 500},
			MRC:        flatCurve(1000, 0.3),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.5,
		},
		{
			ID:         "steep",
			Base:       resrc.Vector{CacheSize: 1000, DBRcu: 200, DBWcu: 100, NetBw: 500},
			MRC:        mrc.New([]uint64{0, 500, 1000}, []float64{0.9, 0.5, 0.1}),
			Demand:     tenant.Demand{RCUIfMiss: 1, WCU: 1, NetIfMiss: 1},
			NetBwAlpha: 0.5,
		},
	}
	cfg := config.DefaultAllocConfig()
	cfg.CacheDeltaGranularity = 1

	res, err := Allocate(inputs, cfg, PolicyDRF)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	flat, steep := res.Alloc["flat"], res.Alloc["steep"]
	if steep.CacheSize <= flat.CacheSize {
		t.Fatalf("steep-MRC tenant should get strictly more cache than the flat tenant: steep=%d flat=%d", steep.CacheSize, flat.CacheSize)
	}
	if flat.DBRcu <= steep.DBRcu {
		t.Fatalf("flat-MRC tenant should get strictly more db_rcu than the steep tenant: flat=%v steep=%v", flat.DBRcu, steep.DBRcu)
	}
}

// TestAllocateHAREHarvestsIdleRCUToCacheBoundTenant covers spec.md §8
// scenario 3: a cache-bound tenant (steep MRC, pinned against the
// cache pool) and an RCU-idle tenant (flat, already cache-satisfied,
// whose fair-share bisection leaves most of its db_rcu untouched).
// HARE's harvest sweep must move the idle db_rcu to the cache-bound
// tenant, bringing its db_rcu well above its base, while every pool
// sum constraint still holds.
func TestAllocateHAREHarvestsIdleRCUToCacheBoundTenant(t *testing.T) {
	inputs := []TenantInput{
		{
			ID:         "cachebound",
			Base:       resrc.Vector{CacheSize: 100, DBRcu: 100, DBWcu: 100, NetBw: 100},
			MRC:        mrc.New([]uint64{0, 100, 2000}, []float64{0.9, 0.5, 0.05}),
			Demand:     tenant.Demand{RCUIfMiss: 0.1, WCU: 0.1, NetIfMiss: 0.1},
			NetBwAlpha: 0.5,
		},
		{
			ID:         "rcuidle",
			Base:       resrc.Vector{CacheSize: 5000, DBRcu: 500, DBWcu: 500, NetBw: 500},
			MRC:        flatCurve(5000, 0.02),
			Demand:     tenant.Demand{RCUIfMiss: 0.1, WCU: 0.1, NetIfMiss: 0.1},
			NetBwAlpha: 0.5,
		},
	}
	cfg := config.DefaultAllocConfig()
	cfg.CacheDeltaGranularity = 1

	res, err := Allocate(inputs, cfg, PolicyHARE)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	bound, idle := res.Alloc["cachebound"], res.Alloc["rcuidle"]
	wantMinRCU := 1.2 * inputs[0].Base.DBRcu
	if bound.DBRcu < wantMinRCU {
		t.Fatalf("cache-bound tenant's harvested db_rcu = %v, want >= 1.2x base (%v)", bound.DBRcu, wantMinRCU)
	}

	var totalCache uint64
	var totalRCU, totalWCU float64
	for _, in := range inputs {
		totalCache += in.Base.CacheSize
		totalRCU += in.Base.DBRcu
		totalWCU += in.Base.DBWcu
	}
	if used := bound.CacheSize + idle.CacheSize; used > totalCache {
		t.Fatalf("harvested cache %d exceeds pool %d", used, totalCache)
	}
	if used := bound.DBRcu + idle.DBRcu; used > totalRCU+1e-6 {
		t.Fatalf("harvested db_rcu %v exceeds pool %v", used, totalRCU)
	}
	if used := bound.DBWcu + idle.DBWcu; used > totalWCU+1e-6 {
		t.Fatalf("db_wcu %v exceeds pool %v", used, totalWCU)
	}
}

func TestAllocateRejectsEmptyTenantList(t *testing.T) {
	_, err := Allocate(nil, config.DefaultAllocConfig(), PolicyDRF)
	if err == nil {
		t.Fatal("expected an error allocating with zero tenants")
	}
}
