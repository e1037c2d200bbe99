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

// Package controller drives the stat/allocation/apply cycle across a
// fixed schedule of allocation timestamps, ported from
// hopperkv/alloc/controller.py.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hopperalloc/internal/alloc"
	"hopperalloc/internal/config"
	"hopperalloc/internal/errs"
	"hopperalloc/internal/tenant"
)

var (
	improveRatioGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hopperalloc_controller_improve_ratio",
		Help: "Fairness improve_ratio achieved by the most recent allocation.",
	})
	applyModeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hopperalloc_controller_apply_mode",
		Help: "Current apply mode: 0=direct, 1=boost, 2=gradual.",
	})
)

func init() {
	prometheus.MustRegister(improveRatioGauge, applyModeGauge)
}

// ApplyMode selects how a new allocation is rolled out to tenants.
type ApplyMode int

const (
	ModeDirect ApplyMode = iota
	ModeBoost
	ModeGradual
)

// Controller owns the full tenant set and runs the allocation
// schedule against them.
type Controller struct {
	Tenants []*tenant.Tenant
	Cfg     config.AllocConfig
	Policy  alloc.Policy
	Mode    ApplyMode

	prevImproveRatio float64
	logger           *log.Logger
}

// New constructs a Controller over an already-built tenant set.
func New(tenants []*tenant.Tenant, cfg config.AllocConfig, policy alloc.Policy, mode ApplyMode) *Controller {
	applyModeGauge.Set(float64(mode))
	return &Controller{
		Tenants: tenants,
		Cfg:     cfg,
		Policy:  policy,
		Mode:    mode,
		logger:  log.New(os.Stderr, "[controller] ", log.LstdFlags),
	}
}

// PollPrevSnapshots opens a new statistics window on every tenant.
func (c *Controller) PollPrevSnapshots(ctx context.Context) error {
	for _, t := range c.Tenants {
		if err := t.PollPrevSnapshot(ctx); err != nil {
			return fmt.Errorf("controller: poll_prev tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

// PollPostSnapshots closes the statistics window on every tenant.
// Tenants that individually observe NoProgress do not abort the
// others; the overall call reports ready=false so the caller can skip
// this allocation round and emit an NA row, matching
// pre_alloc_poll/poll_post_snapshots in the original controller.
func (c *Controller) PollPostSnapshots(ctx context.Context) (ready bool, err error) {
	ready = true
	for _, t := range c.Tenants {
		perr := t.PollPostSnapshot(ctx)
		if perr == nil {
			continue
		}
		if errors.Is(perr, errs.ErrNoProgress) {
			c.logger.Printf("tenant %s made no progress this window, skipping allocation", t.ID)
			ready = false
			continue
		}
		return false, fmt.Errorf("controller: poll_post tenant %s: %w", t.ID, perr)
	}
	return ready, nil
}

// RunAllocation builds the allocator's tenant input from the current
// tenant state and runs the configured policy.
func (c *Controller) RunAllocation() (alloc.Result, error) {
	inputs := make([]alloc.TenantInput, len(c.Tenants))
	for i, t := range c.Tenants {
		inputs[i] = alloc.TenantInput{
			ID:         t.ID,
			Base:       t.BaseResrc(),
			MRC:        t.MRC(),
			Demand:     t.Demand(),
			NetBwAlpha: t.NetBwAlpha(),
		}
	}
	res, err := alloc.Allocate(inputs, c.Cfg, c.Policy)
	if err != nil {
		return alloc.Result{}, err
	}
	improveRatioGauge.Set(res.ImproveRatio)
	return res, nil
}

// thresholdGate reports whether the new allocation should be skipped
// because it doesn't clear the previously achieved improve_ratio by
// at least AllocApplyThreshold.
func (c *Controller) thresholdGate(newRatio float64) bool {
	if c.Cfg.AllocApplyThreshold <= 0 {
		return false
	}
	return newRatio < c.prevImproveRatio+c.Cfg.AllocApplyThreshold
}

func (c *Controller) tenantByID(id string) *tenant.Tenant {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ApplyDirect applies every tenant's target vector immediately and
// returns whether the threshold gate skipped the round.
func (c *Controller) ApplyDirect(ctx context.Context, result alloc.Result) (skipped bool, err error) {
	if c.thresholdGate(result.ImproveRatio) {
		c.logger.Printf("skipping apply: improve_ratio %g does not clear threshold", result.ImproveRatio)
		return true, nil
	}
	for _, t := range c.Tenants {
		target := result.Alloc[t.ID]
		c.logger.Printf("tenant %s: %s", t.ID, target)
		if err := t.ApplyResrc(ctx, target); err != nil {
			return false, err
		}
	}
	c.prevImproveRatio = result.ImproveRatio
	return false, nil
}

// ApplyBoost mirrors boost_apply: tenants whose target shrinks (or
// holds) cache apply directly; tenants that grow are over-provisioned
// immediately and polled at pollFreq until warm, applying their real
// target once ready. If ddl is reached first, any still-pending
// tenant applies its last pending vector outright. statAt, if
// non-zero and not yet passed, triggers an opportunistic
// PollPrevSnapshots mid-boost.
func (c *Controller) ApplyBoost(ctx context.Context, result alloc.Result, pollFreq time.Duration, statAt, ddl time.Time) (statDone bool, err error) {
	if c.thresholdGate(result.ImproveRatio) {
		c.logger.Printf("skipping apply: improve_ratio %g does not clear threshold", result.ImproveRatio)
		return false, nil
	}

	var pending []*tenant.Tenant
	for _, t := range c.Tenants {
		target := result.Alloc[t.ID]
		c.logger.Printf("tenant %s: %s", t.ID, target)
		done, err := t.TryApplyWithBoost(ctx, target)
		if err != nil {
			return statDone, err
		}
		if !done {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		c.prevImproveRatio = result.ImproveRatio
		return statDone, nil
	}

	begin := time.Now()
	for len(pending) > 0 {
		now := time.Now()
		if !ddl.IsZero() && now.Add(pollFreq).After(ddl) {
			c.logger.Printf("boosting incomplete due to timeout after %s", time.Since(begin))
			for _, t := range pending {
				if err := t.ApplyLastPendingAndClear(ctx); err != nil {
					return statDone, err
				}
			}
			return statDone, nil
		}
		if !statDone && !statAt.IsZero() && now.After(statAt) {
			if err := c.PollPrevSnapshots(ctx); err != nil {
				return statDone, err
			}
			statDone = true
		}

		select {
		case <-ctx.Done():
			return statDone, ctx.Err()
		case <-time.After(pollFreq):
		}

		var stillPending []*tenant.Tenant
		for _, t := range pending {
			warm, err := t.IsCacheWarm(ctx, 0)
			if err != nil {
				return statDone, err
			}
			if warm {
				if err := t.ApplyNextPending(ctx); err != nil {
					return statDone, err
				}
			} else {
				stillPending = append(stillPending, t)
			}
		}
		pending = stillPending
	}
	c.logger.Printf("completed boosting after %s", time.Since(begin))
	c.prevImproveRatio = result.ImproveRatio
	return statDone, nil
}

// ApplyGradual mirrors gradual_apply: the cache delta for each tenant
// is split into num_rounds steps bounded by
// cfg.MaxCacheRelocEachRound, applying the first round immediately and
// waiting for every tenant to report warm between subsequent rounds.
func (c *Controller) ApplyGradual(ctx context.Context, result alloc.Result, pollFreq time.Duration, statAt, ddl time.Time) (statDone bool, err error) {
	if c.thresholdGate(result.ImproveRatio) {
		c.logger.Printf("skipping apply: improve_ratio %g does not clear threshold", result.ImproveRatio)
		return false, nil
	}

	maxStep := c.Cfg.MaxCacheRelocEachRound
	if maxStep == 0 {
		maxStep = 1
	}

	var maxDelta uint64
	for _, t := range c.Tenants {
		target := result.Alloc[t.ID]
		delta := cacheAbsDelta(target.CacheSize, t.CurrAlloc().CacheSize)
		if delta > maxDelta {
			maxDelta = delta
		}
	}
	numRounds := int(maxDelta/maxStep) + 1

	for _, t := range c.Tenants {
		target := result.Alloc[t.ID]
		curr := t.CurrAlloc()
		deltaVec := target.Sub(curr)
		for round := 0; round < numRounds-1; round++ {
			frac := float64(round+1) / float64(numRounds)
			t.AddPendingResrc(curr.Add(deltaVec.Scale(frac)))
		}
		t.AddPendingResrc(target)
	}

	for _, t := range c.Tenants {
		if err := t.ApplyNextPending(ctx); err != nil {
			return statDone, err
		}
	}
	if numRounds == 1 {
		c.prevImproveRatio = result.ImproveRatio
		return statDone, nil
	}

	begin := time.Now()
	for round := 0; round < numRounds-1; round++ {
		pending, err := c.tenantsNotWarm(ctx)
		if err != nil {
			return statDone, err
		}
		for len(pending) > 0 {
			now := time.Now()
			if !ddl.IsZero() && now.Add(pollFreq).After(ddl) {
				c.logger.Printf("gradual allocation incomplete due to timeout after %s", time.Since(begin))
				for _, t := range c.Tenants {
					if err := t.ApplyLastPendingAndClear(ctx); err != nil {
						return statDone, err
					}
				}
				return statDone, nil
			}
			if !statDone && !statAt.IsZero() && now.After(statAt) {
				if err := c.PollPrevSnapshots(ctx); err != nil {
					return statDone, err
				}
				statDone = true
			}
			select {
			case <-ctx.Done():
				return statDone, ctx.Err()
			case <-time.After(pollFreq):
			}
			pending, err = c.stillNotWarm(ctx, pending)
			if err != nil {
				return statDone, err
			}
		}
		for _, t := range c.Tenants {
			if err := t.ApplyNextPending(ctx); err != nil {
				return statDone, err
			}
		}
	}
	c.logger.Printf("completed gradual relocation after %s", time.Since(begin))
	c.prevImproveRatio = result.ImproveRatio
	return statDone, nil
}

func (c *Controller) tenantsNotWarm(ctx context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for _, t := range c.Tenants {
		warm, err := t.IsCacheWarm(ctx, 0)
		if err != nil {
			return nil, err
		}
		if !warm {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Controller) stillNotWarm(ctx context.Context, in []*tenant.Tenant) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for _, t := range in {
		warm, err := t.IsCacheWarm(ctx, 0)
		if err != nil {
			return nil, err
		}
		if !warm {
			out = append(out, t)
		}
	}
	return out, nil
}

func cacheAbsDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
