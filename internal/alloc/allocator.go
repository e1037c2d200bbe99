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

// Package alloc implements the DRF/HARE/Memshare allocation policies:
// a bisection search on a shared fairness metric, with per-policy
// post-processing. The underlying compiled allocation engine this was
// modeled after is not available in source form, so the bisection's
// internal resource-splitting rule below is this module's own design,
// built to satisfy the same objective and pool constraints over all
// four fungible resources (cache, db_rcu, db_wcu, net_bw).
package alloc

import (
	"fmt"
	"math"
	"sort"

	"hopperalloc/internal/config"
	"hopperalloc/internal/mrc"
	"hopperalloc/internal/resrc"
	"hopperalloc/internal/tenant"
)

// Policy selects which fairness/redistribution rule Allocate applies.
type Policy int

const (
	PolicyDRF Policy = iota
	PolicyHARE
	PolicyMemshare
)

func (p Policy) String() string {
	switch p {
	case PolicyDRF:
		return "drf"
	case PolicyHARE:
		return "hare"
	case PolicyMemshare:
		return "memshare"
	default:
		return "unknown"
	}
}

// TenantInput is the per-tenant data the allocator needs: its
// baseline allocation, derived MRC, derived demand, and hit/miss
// bandwidth coefficient — the exact tuple spec.md §4.J names as input.
type TenantInput struct {
	ID         string
	Base       resrc.Vector
	MRC        mrc.Curve
	Demand     tenant.Demand
	NetBwAlpha float64
}

// Result is the allocator's output: a per-tenant target vector and the
// overall fairness value achieved.
type Result struct {
	Alloc        map[string]resrc.Vector
	ImproveRatio float64
}

// poolTotals is the Σbase across tenants for each of the four
// resources — the right-hand side of every pool constraint in §4.J.
type poolTotals struct {
	cache    uint64
	rcu, wcu float64
	net      float64
}

// tputAt mirrors Tenant.EstimateTput, standalone so the allocator does
// not need a live endpoint-bound Tenant to evaluate candidates.
func tputAt(in TenantInput, r resrc.Vector) float64 {
	mr := in.MRC.GetMissRatio(r.CacheSize)

	dbTerm := math.Inf(1)
	if in.Demand.RCUIfMiss*mr > 0 {
		dbTerm = r.DBRcu / (in.Demand.RCUIfMiss * mr)
	}
	wcuTerm := math.Inf(1)
	if in.Demand.WCU > 0 {
		wcuTerm = r.DBWcu / in.Demand.WCU
	}
	netDemand := in.Demand.NetIfMiss * (1 - in.NetBwAlpha + in.NetBwAlpha*mr)
	netTerm := math.Inf(1)
	if netDemand > 0 {
		netTerm = r.NetBw / netDemand
	}
	return math.Min(dbTerm, math.Min(wcuTerm, netTerm))
}

// tenantBounds is the range of miss ratios tenant i may be pinned to
// while still hitting its fairness target: mrLo is the ratio at
// (effectively) unlimited cache, mrHi is the ratio at zero cache,
// further capped — when net_bw is not pooled — by the ratio at which
// the tenant's fixed base.NetBw alone still clears the target tput.
type tenantBounds struct {
	mrLo, mrHi float64
}

// tenantMRBounds computes tenant in's feasible miss-ratio range for a
// given target throughput. ok is false if no miss ratio lets the
// tenant reach target — only possible in the non-pooled net_bw case,
// where net_bw is fixed at the tenant's own base and may be
// intrinsically insufficient regardless of cache/rcu.
func tenantMRBounds(in TenantInput, target float64, poolNet bool) (mrLo, mrHi float64, ok bool) {
	mrLo = in.MRC.GetMissRatio(math.MaxUint64)
	mrHi = in.MRC.GetMissRatio(0)

	if !poolNet && target > 0 && in.Demand.NetIfMiss > 0 {
		if in.NetBwAlpha > 0 {
			bound := (in.Base.NetBw/(target*in.Demand.NetIfMiss) - (1 - in.NetBwAlpha)) / in.NetBwAlpha
			if bound < mrHi {
				mrHi = bound
			}
		} else if in.Base.NetBw < target*in.Demand.NetIfMiss {
			// net_bw demand doesn't vary with mr (alpha == 0, a hit
			// costs the same as a miss); base.NetBw alone must cover
			// it or no mr in range works.
			return mrLo, mrHi, false
		}
	}

	if mrHi < 0 {
		mrHi = 0
	}
	if mrLo > 1 {
		mrLo = 1
	}
	if mrHi < mrLo {
		return mrLo, mrHi, false
	}
	return mrLo, mrHi, true
}

// tenantVectorAt builds tenant in's resource vector for a given target
// throughput and a fairness-split λ ∈ [0,1], where λ=0 pins the tenant
// to its lowest feasible miss ratio (most cache, least db_rcu/net_bw)
// and λ=1 to its highest (least cache, most db_rcu/net_bw). Because
// db_rcu, db_wcu and (when pooled) net_bw are all solved directly from
// target and mr, tputAt of the returned vector equals target for any λ
// in range — λ only trades which resource pool absorbs the demand.
func tenantVectorAt(in TenantInput, target, lambda float64, poolNet bool, mrLo, mrHi float64) resrc.Vector {
	mr := mrLo + lambda*(mrHi-mrLo)
	if mr < 0 {
		mr = 0
	} else if mr > 1 {
		mr = 1
	}

	cache := in.MRC.InverseCacheForMissRatio(mr)

	wcu := 0.0
	if in.Demand.WCU > 0 {
		wcu = target * in.Demand.WCU
	}
	rcu := 0.0
	if in.Demand.RCUIfMiss > 0 {
		rcu = target * in.Demand.RCUIfMiss * mr
	}

	net := in.Base.NetBw
	if poolNet {
		net = target * in.Demand.NetIfMiss * (1 - in.NetBwAlpha + in.NetBwAlpha*mr)
	}

	return resrc.Vector{CacheSize: cache, DBRcu: rcu, DBWcu: wcu, NetBw: net}
}

// sumsAtLambda totals the four resources across every tenant at a
// shared λ, given each tenant's already-computed mr bounds.
func sumsAtLambda(inputs []TenantInput, target []float64, bounds []tenantBounds, lambda float64, poolNet bool) (cache uint64, rcu, wcu, net float64) {
	for i, in := range inputs {
		mr := bounds[i].mrLo + lambda*(bounds[i].mrHi-bounds[i].mrLo)
		cache += in.MRC.InverseCacheForMissRatio(mr)
		if in.Demand.RCUIfMiss > 0 {
			rcu += target[i] * in.Demand.RCUIfMiss * mr
		}
		if in.Demand.WCU > 0 {
			wcu += target[i] * in.Demand.WCU
		}
		if poolNet {
			net += target[i] * in.Demand.NetIfMiss * (1 - in.NetBwAlpha + in.NetBwAlpha*mr)
		}
	}
	return cache, rcu, wcu, net
}

// feasible reports whether phi is achievable under the pool
// constraints (Σ cache ≤ Σ base.cache, Σ db_rcu ≤ Σ base.db_rcu,
// Σ db_wcu ≤ Σ base.db_wcu, and — only if cfg.PolicyAllocTotalNetBW —
// Σ net_bw ≤ Σ base.net_bw). Σcache(λ) is non-increasing in λ and
// Σrcu(λ)/Σnet(λ) are non-decreasing, so the minimal λ clearing the
// cache pool is also the best (smallest) candidate for the other
// three; feasible searches for that λ and checks it against them.
func feasible(inputs []TenantInput, phi float64, tputBase []float64, pool poolTotals, cfg config.AllocConfig) (ok bool, lambda float64, cacheUsed uint64) {
	target := make([]float64, len(inputs))
	for i := range inputs {
		target[i] = phi * tputBase[i]
	}

	bounds := make([]tenantBounds, len(inputs))
	for i, in := range inputs {
		lo, hi, tOK := tenantMRBounds(in, target[i], cfg.PolicyAllocTotalNetBW)
		if !tOK {
			return false, 0, 0
		}
		bounds[i] = tenantBounds{lo, hi}
	}

	cacheAt1, _, _, _ := sumsAtLambda(inputs, target, bounds, 1.0, cfg.PolicyAllocTotalNetBW)
	if cacheAt1 > pool.cache {
		return false, 0, 0
	}

	lambda = 1.0
	if cacheAt0, _, _, _ := sumsAtLambda(inputs, target, bounds, 0.0, cfg.PolicyAllocTotalNetBW); cacheAt0 <= pool.cache {
		lambda = 0.0
	} else {
		lo, hi := 0.0, 1.0
		for iter := 0; iter < 60; iter++ {
			mid := (lo + hi) / 2
			cacheMid, _, _, _ := sumsAtLambda(inputs, target, bounds, mid, cfg.PolicyAllocTotalNetBW)
			if cacheMid <= pool.cache {
				hi = mid
			} else {
				lo = mid
			}
		}
		lambda = hi
	}

	cacheUsed, rcuUsed, wcuUsed, netUsed := sumsAtLambda(inputs, target, bounds, lambda, cfg.PolicyAllocTotalNetBW)
	if rcuUsed > pool.rcu+1e-9 || wcuUsed > pool.wcu+1e-9 {
		return false, 0, 0
	}
	if cfg.PolicyAllocTotalNetBW && netUsed > pool.net+1e-9 {
		return false, 0, 0
	}
	return true, lambda, cacheUsed
}

// bisectPhi searches for the supremum feasible fairness value within
// [0, upper], stopping once Δφ falls below cfg.BisectionTolerance or
// the feasible allocation's total cache stops moving by more than
// cfg.CacheDeltaGranularity. Returns the winning φ and the λ split
// that achieved it, so the caller can rebuild the exact per-tenant
// vectors without re-running the search.
func bisectPhi(inputs []TenantInput, cfg config.AllocConfig, tputBase []float64, pool poolTotals) (phi, lambda float64) {
	lo, hi := 0.0, 1.0
	for {
		hiOK, _, _ := feasible(inputs, hi, tputBase, pool, cfg)
		if !hiOK || hi >= 1<<20 {
			break
		}
		hi *= 2
	}

	bestPhi, bestLambda, bestCache := 0.0, 1.0, uint64(0)
	if ok0, lam0, cache0 := feasible(inputs, 0, tputBase, pool, cfg); ok0 {
		bestPhi, bestLambda, bestCache = 0, lam0, cache0
	}

	for iter := 0; iter < 200; iter++ {
		if hi-lo < cfg.BisectionTolerance {
			break
		}
		mid := (lo + hi) / 2
		ok, lam, cache := feasible(inputs, mid, tputBase, pool, cfg)
		if !ok {
			hi = mid
			continue
		}
		lo = mid
		stepsBelowGranularity := cfg.CacheDeltaGranularity > 0
		if stepsBelowGranularity {
			var delta uint64
			if cache > bestCache {
				delta = cache - bestCache
			} else {
				delta = bestCache - cache
			}
			stepsBelowGranularity = delta < cfg.CacheDeltaGranularity
		}
		bestPhi, bestLambda, bestCache = mid, lam, cache
		if stepsBelowGranularity {
			break
		}
	}
	return bestPhi, bestLambda
}

// Allocate runs the bisection for the given policy and returns the
// per-tenant target vectors and achieved improve_ratio.
func Allocate(inputs []TenantInput, cfg config.AllocConfig, policy Policy) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("alloc: no tenants to allocate")
	}

	var pool poolTotals
	tputBase := make([]float64, len(inputs))
	for i, in := range inputs {
		pool.cache += in.Base.CacheSize
		pool.rcu += in.Base.DBRcu
		pool.wcu += in.Base.DBWcu
		pool.net += in.Base.NetBw
		tputBase[i] = tputAt(in, in.Base)
	}

	phi, lambda := bisectPhi(inputs, cfg, tputBase, pool)

	target := make([]float64, len(inputs))
	for i := range inputs {
		target[i] = phi * tputBase[i]
	}

	alloc := make(map[string]resrc.Vector, len(inputs))
	for i, in := range inputs {
		mrLo, mrHi, ok := tenantMRBounds(in, target[i], cfg.PolicyAllocTotalNetBW)
		if !ok {
			// The bisection never settles on a phi this tenant can't
			// satisfy; fall back to its widest possible range so the
			// final vector is still well defined.
			mrLo, mrHi = in.MRC.GetMissRatio(math.MaxUint64), in.MRC.GetMissRatio(0)
		}
		alloc[in.ID] = tenantVectorAt(in, target[i], lambda, cfg.PolicyAllocTotalNetBW, mrLo, mrHi)
	}

	switch policy {
	case PolicyHARE:
		harvestIdle(inputs, alloc, pool, cfg)
	case PolicyMemshare:
		poolMemshare(inputs, alloc, pool.cache, cfg)
	}

	return Result{Alloc: alloc, ImproveRatio: phi - 1}, nil
}

// harvestIdle hands resources left over after the bisection — cache
// and db_rcu that no tenant's requirement grew to consume — to the
// tenants with the lowest current estimated throughput, one
// granularity step at a time, until each pool is exhausted or no
// tenant can still improve.
func harvestIdle(inputs []TenantInput, alloc map[string]resrc.Vector, pool poolTotals, cfg config.AllocConfig) {
	harvestIdleCache(inputs, alloc, pool.cache, cfg)
	harvestIdleRCU(inputs, alloc, pool.rcu)
}

func harvestIdleCache(inputs []TenantInput, alloc map[string]resrc.Vector, totalCache uint64, cfg config.AllocConfig) {
	step := cfg.CacheDeltaGranularity
	if step == 0 {
		step = 1
	}
	var used uint64
	for _, r := range alloc {
		used += r.CacheSize
	}
	leftover := int64(totalCache) - int64(used)
	for leftover > 0 {
		worstID := worstTenant(inputs, alloc)
		if worstID == "" {
			return
		}
		r := alloc[worstID]
		r.CacheSize += step
		alloc[worstID] = r
		leftover -= int64(step)
	}
}

// harvestIdleRCU hands db_rcu left idle by tenants whose allocation
// needed less than their share of Σ base.db_rcu to the tenant with
// the lowest current estimated throughput, in 256 fixed steps — db_rcu
// has no configured granularity, so a fixed step count bounds the
// loop regardless of the pool's absolute scale.
func harvestIdleRCU(inputs []TenantInput, alloc map[string]resrc.Vector, totalRCU float64) {
	var used float64
	for _, r := range alloc {
		used += r.DBRcu
	}
	leftover := totalRCU - used
	if leftover <= 1e-9 {
		return
	}
	const rounds = 256
	step := leftover / rounds
	for i := 0; i < rounds && leftover > 1e-9; i++ {
		worstID := worstTenant(inputs, alloc)
		if worstID == "" {
			return
		}
		r := alloc[worstID]
		r.DBRcu += step
		alloc[worstID] = r
		leftover -= step
	}
}

func worstTenant(inputs []TenantInput, alloc map[string]resrc.Vector) string {
	worstID := ""
	worstTput := math.Inf(1)
	for _, in := range inputs {
		r := alloc[in.ID]
		tp := tputAt(in, r)
		if tp < worstTput {
			worstTput = tp
			worstID = in.ID
		}
	}
	return worstID
}

// poolMemshare treats the full cache pool as a single soft resource
// and redistributes it (starting from the bisection's per-tenant
// baseline) weighted by each tenant's marginal miss-ratio slope times
// its current throughput: the tenant that gains the most additional
// throughput per incremental byte of cache receives the next step.
func poolMemshare(inputs []TenantInput, alloc map[string]resrc.Vector, totalCache uint64, cfg config.AllocConfig) {
	step := cfg.CacheDeltaGranularity
	if step == 0 {
		step = 1 << 20
	}

	var allocated uint64
	for _, r := range alloc {
		allocated += r.CacheSize
	}
	var pool int64
	if totalCache > allocated {
		pool = int64(totalCache - allocated)
	}

	for pool > 0 {
		bestID := ""
		bestWeight := -1.0
		for _, in := range inputs {
			r := alloc[in.ID]
			mrHere := in.MRC.GetMissRatio(r.CacheSize)
			mrNext := in.MRC.GetMissRatio(r.CacheSize + step)
			slope := (mrHere - mrNext) / float64(step)
			if slope <= 0 {
				continue
			}
			tp := tputAt(in, r)
			weight := slope * tp
			if weight > bestWeight {
				bestWeight = weight
				bestID = in.ID
			}
		}
		if bestID == "" {
			break
		}
		r := alloc[bestID]
		r.CacheSize += step
		alloc[bestID] = r
		pool -= int64(step)
	}
}

// sortedIDs returns tenant IDs in a stable order, used by callers that
// need deterministic iteration (e.g. CSV output, tests).
func sortedIDs(inputs []TenantInput) []string {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
	}
	sort.Strings(ids)
	return ids
}
