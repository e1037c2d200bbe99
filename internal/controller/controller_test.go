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

package controller

import (
	"context"
	"testing"
	"time"

	"hopperalloc/internal/alloc"
	"hopperalloc/internal/config"
	"hopperalloc/internal/endpoint"
	"hopperalloc/internal/resrc"
	"hopperalloc/internal/tenant"
)

// fakeEndpoint is a minimal CacheEndpoint test double shared across
// controller tests. It reports memory as fully warmed immediately so
// boost/gradual rounds resolve without real waiting.
type fakeEndpoint struct {
	stats     endpoint.Stats
	lastResrc resrc.Vector
}

func (f *fakeEndpoint) WaitReady(ctx context.Context) error { return nil }
func (f *fakeEndpoint) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeEndpoint) Set(ctx context.Context, key, val string) error { return nil }
func (f *fakeEndpoint) GetAsync(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeEndpoint) SetAsync(ctx context.Context, key, val string) error { return nil }
func (f *fakeEndpoint) BatchAdd(key string, val *string)                   {}
func (f *fakeEndpoint) BatchFlush(ctx context.Context) error               { return nil }
func (f *fakeEndpoint) Stats(ctx context.Context) (endpoint.Stats, error)  { return f.stats, nil }
func (f *fakeEndpoint) MemoryStats(ctx context.Context) (endpoint.MemoryStats, error) {
	return endpoint.MemoryStats{TotalAllocated: f.lastResrc.CacheSize}, nil
}
func (f *fakeEndpoint) GetResrc(ctx context.Context) (resrc.Vector, error) { return f.lastResrc, nil }
func (f *fakeEndpoint) SetResrc(ctx context.Context, v resrc.Vector) error {
	f.lastResrc = v
	return nil
}
func (f *fakeEndpoint) SetGhostRange(ctx context.Context, tick, minTick, maxTick uint64) error {
	return nil
}
func (f *fakeEndpoint) SetConfig(ctx context.Context, field string, args ...string) error {
	return nil
}
func (f *fakeEndpoint) EnableAdmitWrite(ctx context.Context) error  { return nil }
func (f *fakeEndpoint) DisableAdmitWrite(ctx context.Context) error { return nil }
func (f *fakeEndpoint) BarrierWait(ctx context.Context) error       { return nil }
func (f *fakeEndpoint) BarrierSignal(ctx context.Context) error     { return nil }
func (f *fakeEndpoint) BarrierCount(ctx context.Context) (int, error) {
	return 0, nil
}
func (f *fakeEndpoint) Load(ctx context.Context, path string) error { return nil }
func (f *fakeEndpoint) Close() error                                { return nil }

func newTestTenant(id string, base resrc.Vector) (*tenant.Tenant, *fakeEndpoint) {
	ep := &fakeEndpoint{lastResrc: base}
	cfg := config.DefaultAllocConfig()
	return tenant.New(id, ep, base, base, 0, cfg), ep
}

func TestApplyDirectAppliesEveryTenant(t *testing.T) {
	base := resrc.Vector{CacheSize: 1000, DBRcu: 10, DBWcu: 10, NetBw: 10}
	t1, ep1 := newTestTenant("a", base)
	t2, ep2 := newTestTenant("b", base)

	cfg := config.DefaultAllocConfig()
	c := New([]*tenant.Tenant{t1, t2}, cfg, alloc.PolicyDRF, ModeDirect)

	result := alloc.Result{
		Alloc: map[string]resrc.Vector{
			"a": {CacheSize: 1200, DBRcu: 10, DBWcu: 10, NetBw: 10},
			"b": {CacheSize: 800, DBRcu: 10, DBWcu: 10, NetBw: 10},
		},
		ImproveRatio: 0.1,
	}
	skipped, err := c.ApplyDirect(context.Background(), result)
	if err != nil {
		t.Fatalf("ApplyDirect: %v", err)
	}
	if skipped {
		t.Fatal("expected apply to proceed with zero threshold")
	}
	if ep1.lastResrc.CacheSize != 1200 {
		t.Fatalf("tenant a cache = %d, want 1200", ep1.lastResrc.CacheSize)
	}
	if ep2.lastResrc.CacheSize != 800 {
		t.Fatalf("tenant b cache = %d, want 800", ep2.lastResrc.CacheSize)
	}
}

func TestApplyDirectThresholdGateSkips(t *testing.T) {
	base := resrc.Vector{CacheSize: 1000, DBRcu: 10, DBWcu: 10, NetBw: 10}
	t1, ep1 := newTestTenant("a", base)

	cfg := config.DefaultAllocConfig()
	cfg.AllocApplyThreshold = 0.5
	c := New([]*tenant.Tenant{t1}, cfg, alloc.PolicyDRF, ModeDirect)
	c.prevImproveRatio = 0

	result := alloc.Result{
		Alloc:        map[string]resrc.Vector{"a": {CacheSize: 2000, DBRcu: 10, DBWcu: 10, NetBw: 10}},
		ImproveRatio: 0.1, // below 0 + 0.5 threshold
	}
	skipped, err := c.ApplyDirect(context.Background(), result)
	if err != nil {
		t.Fatalf("ApplyDirect: %v", err)
	}
	if !skipped {
		t.Fatal("expected threshold gate to skip this apply")
	}
	if ep1.lastResrc.CacheSize != 1000 {
		t.Fatalf("tenant a cache changed despite skipped apply: %d", ep1.lastResrc.CacheSize)
	}
}

func TestApplyBoostAppliesDirectlyWhenNoGrowth(t *testing.T) {
	base := resrc.Vector{CacheSize: 1000, DBRcu: 10, DBWcu: 10, NetBw: 10}
	t1, ep1 := newTestTenant("a", base)

	cfg := config.DefaultAllocConfig()
	c := New([]*tenant.Tenant{t1}, cfg, alloc.PolicyDRF, ModeBoost)

	result := alloc.Result{
		Alloc:        map[string]resrc.Vector{"a": {CacheSize: 500, DBRcu: 10, DBWcu: 10, NetBw: 10}},
		ImproveRatio: 0,
	}
	statDone, err := c.ApplyBoost(context.Background(), result, 10*time.Millisecond, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ApplyBoost: %v", err)
	}
	if statDone {
		t.Fatal("expected no stat poll when no tenant is pending")
	}
	if ep1.lastResrc.CacheSize != 500 {
		t.Fatalf("tenant a cache = %d, want 500", ep1.lastResrc.CacheSize)
	}
}

func TestApplyBoostResolvesPendingOnceWarm(t *testing.T) {
	base := resrc.Vector{CacheSize: 1000, DBRcu: 10, DBWcu: 10, NetBw: 10}
	t1, ep1 := newTestTenant("a", base)

	cfg := config.DefaultAllocConfig()
	c := New([]*tenant.Tenant{t1}, cfg, alloc.PolicyDRF, ModeBoost)

	result := alloc.Result{
		Alloc:        map[string]resrc.Vector{"a": {CacheSize: 2000, DBRcu: 10, DBWcu: 10, NetBw: 10}},
		ImproveRatio: 0,
	}
	// fakeEndpoint reports MemoryStats.TotalAllocated == lastResrc.CacheSize,
	// which after the over-provisioned apply already equals the target
	// cache size, so IsCacheWarm is true on the very first poll.
	ddl := time.Now().Add(time.Second)
	_, err := c.ApplyBoost(context.Background(), result, 5*time.Millisecond, time.Time{}, ddl)
	if err != nil {
		t.Fatalf("ApplyBoost: %v", err)
	}
	if ep1.lastResrc.CacheSize != 2000 {
		t.Fatalf("tenant a final cache = %d, want 2000", ep1.lastResrc.CacheSize)
	}
	if t1.HasPending() {
		t.Fatal("expected pending queue drained once warm")
	}
}

func TestApplyGradualSingleRoundWhenDeltaFitsOneStep(t *testing.T) {
	base := resrc.Vector{CacheSize: 1000, DBRcu: 10, DBWcu: 10, NetBw: 10}
	t1, ep1 := newTestTenant("a", base)

	cfg := config.DefaultAllocConfig()
	cfg.MaxCacheRelocEachRound = 1 << 30 // larger than any delta below
	c := New([]*tenant.Tenant{t1}, cfg, alloc.PolicyDRF, ModeGradual)

	result := alloc.Result{
		Alloc:        map[string]resrc.Vector{"a": {CacheSize: 1100, DBRcu: 10, DBWcu: 10, NetBw: 10}},
		ImproveRatio: 0,
	}
	_, err := c.ApplyGradual(context.Background(), result, 5*time.Millisecond, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ApplyGradual: %v", err)
	}
	if ep1.lastResrc.CacheSize != 1100 {
		t.Fatalf("tenant a cache = %d, want 1100 after single-round gradual apply", ep1.lastResrc.CacheSize)
	}
}

func TestThresholdGateDisabledWhenZero(t *testing.T) {
	cfg := config.DefaultAllocConfig()
	cfg.AllocApplyThreshold = 0
	c := New(nil, cfg, alloc.PolicyDRF, ModeDirect)
	if c.thresholdGate(-100) {
		t.Fatal("expected threshold gate disabled when AllocApplyThreshold == 0")
	}
}
