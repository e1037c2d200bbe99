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

// Package tenant implements the per-tenant state machine: snapshot
// polling, MRC/demand derivation, throughput estimation, and the
// boost/gradual resource-apply protocol, ported from
// hopperkv/alloc/tenant.py.
package tenant

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"hopperalloc/internal/config"
	"hopperalloc/internal/endpoint"
	"hopperalloc/internal/errs"
	"hopperalloc/internal/mrc"
	"hopperalloc/internal/resrc"
)

// Demand is the per-request resource demand a tenant's workload
// exerts, derived from an EpochStat window.
type Demand struct {
	RCUIfMiss float64
	WCU       float64
	NetIfMiss float64
}

// Tenant owns one cache shard's state: its endpoint handle, the
// rolling snapshot window, and the derived MRC/demand/net_bw_alpha
// used by the allocator.
type Tenant struct {
	ID       string
	endpoint endpoint.CacheEndpoint
	cfg      config.AllocConfig
	mrcSalt  float64

	baseResrc resrc.Vector
	currAlloc resrc.Vector

	prevSnapshot resrc.EpochStat
	hasPrev      bool
	window       []resrc.EpochStat // bounded to cfg.SmoothingWindow

	mrc         mrc.Curve
	demand      Demand
	netBwAlpha  float64

	pending []resrc.Vector

	logger *log.Logger
}

// New constructs a Tenant bound to one cache endpoint handle.
func New(tid string, ep endpoint.CacheEndpoint, baseResrc, initResrc resrc.Vector, mrcSalt float64, cfg config.AllocConfig) *Tenant {
	return &Tenant{
		ID:        tid,
		endpoint:  ep,
		cfg:       cfg,
		mrcSalt:   mrcSalt,
		baseResrc: baseResrc,
		currAlloc: initResrc,
		logger:    log.New(os.Stderr, fmt.Sprintf("[tenant %s] ", tid), log.LstdFlags),
	}
}

// PollPrevSnapshot reads the endpoint's current stats and records it
// as the window's opening reference point.
func (t *Tenant) PollPrevSnapshot(ctx context.Context) error {
	snap, err := t.readSnapshot(ctx)
	if err != nil {
		return err
	}
	t.prevSnapshot = snap
	t.hasPrev = true
	return nil
}

// PollPostSnapshot reads a fresh snapshot, derives the window delta,
// rotates the smoothing deque, and updates the tenant's MRC, demand,
// and net_bw_alpha. It replaces prevSnapshot with the post snapshot so
// repeated calls are composable (each call closes one window and opens
// the next).
func (t *Tenant) PollPostSnapshot(ctx context.Context) error {
	if !t.hasPrev {
		return fmt.Errorf("tenant: PollPostSnapshot called before PollPrevSnapshot: %w", errs.ErrNoProgress)
	}
	post, err := t.readSnapshot(ctx)
	if err != nil {
		return err
	}
	epoch, err := post.Sub(t.prevSnapshot)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	if !epoch.IsValid() {
		t.prevSnapshot = post
		return fmt.Errorf("tenant %s: %w", t.ID, errs.ErrNoProgress)
	}

	t.window = append(t.window, epoch)
	if len(t.window) > t.cfg.SmoothingWindow && t.cfg.SmoothingWindow > 0 {
		t.window = t.window[len(t.window)-t.cfg.SmoothingWindow:]
	}

	agg := t.window[0]
	for _, e := range t.window[1:] {
		agg = agg.Add(e)
	}

	t.mrc = buildMRC(agg, t.mrcSalt)

	if agg.ReqCnt > 0 {
		t.demand = Demand{
			RCUIfMiss: agg.DBRcuConsumpIfMiss / float64(agg.ReqCnt),
			WCU:       agg.DBWcuConsump / float64(agg.ReqCnt),
			NetIfMiss: agg.NetBwConsumpIfMiss / float64(agg.ReqCnt),
		}
	}
	if agg.NetBwConsumpIfMiss > 0 {
		t.netBwAlpha = 1 - agg.NetBwConsumpIfHit/agg.NetBwConsumpIfMiss
	}

	t.prevSnapshot = post
	return nil
}

// buildMRC converts ghost tick/hit/miss counters into a miss-ratio
// curve, applying mrcSalt and clamping as spec.md §4.I specifies.
func buildMRC(agg resrc.EpochStat, mrcSalt float64) mrc.Curve {
	ratios := make([]float64, len(agg.GhostTicks))
	for i := range agg.GhostTicks {
		hc, mc := agg.GhostHitCnt[i], agg.GhostMissCnt[i]
		if hc+mc == 0 {
			ratios[i] = 1
			continue
		}
		r := float64(mc)/float64(hc+mc) + mrcSalt
		if r > 1 {
			r = 1
		}
		ratios[i] = r
	}
	return mrc.New(agg.GhostTicks, ratios)
}

func (t *Tenant) readSnapshot(ctx context.Context) (resrc.EpochStat, error) {
	s, err := t.endpoint.Stats(ctx)
	if err != nil {
		return resrc.EpochStat{}, fmt.Errorf("tenant %s: read stats: %w", t.ID, err)
	}
	return resrc.EpochStat{
		ReqCnt:             s.ReqCnt,
		HitCnt:             s.HitCnt,
		MissCnt:            s.MissCnt,
		DBRcuConsump:       s.DBRcuConsump,
		DBWcuConsump:       s.DBWcuConsump,
		NetBwConsump:       s.NetBwConsump,
		DBRcuConsumpIfMiss: s.DBRcuConsumpIfMiss,
		NetBwConsumpIfMiss: s.NetBwConsumpIfMiss,
		NetBwConsumpIfHit:  s.NetBwConsumpIfHit,
		GhostTicks:         s.GhostTicks,
		GhostHitCnt:        s.GhostHitCnt,
		GhostMissCnt:       s.GhostMissCnt,
	}, nil
}

// MRC exposes the tenant's currently derived miss-ratio curve.
func (t *Tenant) MRC() mrc.Curve { return t.mrc }

// Demand exposes the tenant's currently derived per-request demand.
func (t *Tenant) Demand() Demand { return t.demand }

// NetBwAlpha exposes the tenant's currently derived hit/miss
// bandwidth-ratio coefficient.
func (t *Tenant) NetBwAlpha() float64 { return t.netBwAlpha }

// BaseResrc exposes the tenant's fixed baseline allocation.
func (t *Tenant) BaseResrc() resrc.Vector { return t.baseResrc }

// CurrAlloc exposes the tenant's most recently applied allocation.
func (t *Tenant) CurrAlloc() resrc.Vector { return t.currAlloc }

// EstimateTput returns the bottleneck throughput a candidate resource
// vector r would sustain against this tenant's current demand and MRC,
// mirroring the original's three-term min() with zero-demand meaning
// unconstrained (+Inf).
func (t *Tenant) EstimateTput(r resrc.Vector) float64 {
	mr := t.mrc.GetMissRatio(r.CacheSize)

	dbTerm := math.Inf(1)
	if t.demand.RCUIfMiss*mr > 0 {
		dbTerm = r.DBRcu / (t.demand.RCUIfMiss * mr)
	}
	wcuTerm := math.Inf(1)
	if t.demand.WCU > 0 {
		wcuTerm = r.DBWcu / t.demand.WCU
	}
	netDemand := t.demand.NetIfMiss * (1 - t.netBwAlpha + t.netBwAlpha*mr)
	netTerm := math.Inf(1)
	if netDemand > 0 {
		netTerm = r.NetBw / netDemand
	}
	return math.Min(dbTerm, math.Min(wcuTerm, netTerm))
}

// EstimateImproveRatio reports the fractional throughput gain of the
// tenant's current allocation over its baseline.
func (t *Tenant) EstimateImproveRatio() float64 {
	base := t.EstimateTput(t.baseResrc)
	if base == 0 {
		return math.Inf(1)
	}
	return t.EstimateTput(t.currAlloc)/base - 1
}

// ApplyResrc enforces the process-wide per-resource floors (logging
// whenever a component is raised), pushes the resulting vector to the
// endpoint, and records it as the tenant's current allocation.
func (t *Tenant) ApplyResrc(ctx context.Context, r resrc.Vector) error {
	enforced := r
	if enforced.CacheSize < t.cfg.MinCacheSize {
		t.logger.Printf("raising cache_size %d -> %d (process-wide minimum)", enforced.CacheSize, t.cfg.MinCacheSize)
		enforced.CacheSize = t.cfg.MinCacheSize
	}
	if enforced.DBRcu < t.cfg.MinDBRCU {
		t.logger.Printf("raising db_rcu %g -> %g (process-wide minimum)", enforced.DBRcu, t.cfg.MinDBRCU)
		enforced.DBRcu = t.cfg.MinDBRCU
	}
	if enforced.DBWcu < t.cfg.MinDBWCU {
		t.logger.Printf("raising db_wcu %g -> %g (process-wide minimum)", enforced.DBWcu, t.cfg.MinDBWCU)
		enforced.DBWcu = t.cfg.MinDBWCU
	}
	if enforced.NetBw < t.cfg.MinNetBW {
		t.logger.Printf("raising net_bw %g -> %g (process-wide minimum)", enforced.NetBw, t.cfg.MinNetBW)
		enforced.NetBw = t.cfg.MinNetBW
	}
	if err := t.endpoint.SetResrc(ctx, enforced); err != nil {
		return fmt.Errorf("tenant %s: apply resrc: %w", t.ID, err)
	}
	t.currAlloc = enforced
	return nil
}

// TryApplyWithBoost applies target directly if it does not grow the
// cache allocation; otherwise it over-provisions an intermediate
// vector immediately (raising rcu/net_bw to at least the baseline so
// the tenant is not starved while the cache warms) and enqueues the
// real target as pending. Returns done=true iff no further work is
// required from the caller.
func (t *Tenant) TryApplyWithBoost(ctx context.Context, target resrc.Vector) (done bool, err error) {
	if target.CacheSize <= t.currAlloc.CacheSize {
		if err := t.ApplyResrc(ctx, target); err != nil {
			return false, err
		}
		return true, nil
	}
	overProvisioned := resrc.Vector{
		CacheSize: target.CacheSize,
		DBRcu:     math.Max(target.DBRcu, t.baseResrc.DBRcu),
		DBWcu:     target.DBWcu,
		NetBw:     math.Max(target.NetBw, t.baseResrc.NetBw),
	}
	if err := t.ApplyResrc(ctx, overProvisioned); err != nil {
		return false, err
	}
	t.AddPendingResrc(target)
	return false, nil
}

// AddPendingResrc enqueues r as a pending target to apply once the
// tenant's cache has warmed.
func (t *Tenant) AddPendingResrc(r resrc.Vector) { t.pending = append(t.pending, r) }

// ApplyNextPending pops and applies the earliest pending vector. It is
// a no-op returning nil if nothing is pending.
func (t *Tenant) ApplyNextPending(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	next := t.pending[0]
	t.pending = t.pending[1:]
	return t.ApplyResrc(ctx, next)
}

// ApplyLastPendingAndClear applies only the most recently enqueued
// pending vector (the true final target) and discards any
// intermediate ones, used when a boost/gradual deadline is reached
// with pending work still outstanding.
func (t *Tenant) ApplyLastPendingAndClear(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	last := t.pending[len(t.pending)-1]
	t.pending = nil
	return t.ApplyResrc(ctx, last)
}

// ClearPending discards all pending vectors without applying them.
func (t *Tenant) ClearPending() { t.pending = nil }

// HasPending reports whether any pending vector remains.
func (t *Tenant) HasPending() bool { return len(t.pending) > 0 }

// IsCacheWarm reports whether the endpoint's allocated memory has
// caught up with the tenant's current target, or the tenant's MRC
// already shows the allocated size is effectively saturating (miss
// ratio below 1%).
func (t *Tenant) IsCacheWarm(ctx context.Context, threshold float64) (bool, error) {
	if threshold <= 0 {
		threshold = t.cfg.CacheWarmThreshold
	}
	ms, err := t.endpoint.MemoryStats(ctx)
	if err != nil {
		return false, fmt.Errorf("tenant %s: memory stats: %w", t.ID, err)
	}
	if float64(ms.TotalAllocated) >= float64(t.currAlloc.CacheSize)*threshold {
		return true, nil
	}
	return t.mrc.GetMissRatio(ms.TotalAllocated) < 0.01, nil
}
