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

// Package endpoint defines the Cache Endpoint facade — the capability
// surface a Tenant consumes — and a Redis-backed reference
// implementation, ported from hopperkv/hopper_redis.py.
package endpoint

import (
	"context"

	"hopperalloc/internal/resrc"
)

// Stats is the atomic snapshot a CacheEndpoint reports; the dotted
// field names of spec.md §4.I are flattened into struct fields and
// converted to a resrc.EpochStat by the tenant.
type Stats struct {
	ReqCnt, HitCnt, MissCnt uint64

	GhostTicks   []uint64
	GhostHitCnt  []uint64
	GhostMissCnt []uint64

	DBRcuConsump, DBWcuConsump, NetBwConsump float64
	DBRcuConsumpIfMiss                       float64
	NetBwConsumpIfMiss, NetBwConsumpIfHit    float64
}

// MemoryStats is the process memory view the tenant consults for
// IsCacheWarm.
type MemoryStats struct {
	TotalAllocated uint64
}

// CacheEndpoint is the opaque capability interface the tenant
// consumes; its implementation (a real cache server) is out of scope
// for this module (spec.md §1). Only the contract is specified here.
type CacheEndpoint interface {
	WaitReady(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string) error
	GetAsync(ctx context.Context, key string) (string, bool, error)
	SetAsync(ctx context.Context, key, val string) error

	BatchAdd(key string, val *string)
	BatchFlush(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
	MemoryStats(ctx context.Context) (MemoryStats, error)

	GetResrc(ctx context.Context) (resrc.Vector, error)
	SetResrc(ctx context.Context, v resrc.Vector) error

	SetGhostRange(ctx context.Context, tick, minTick, maxTick uint64) error
	SetConfig(ctx context.Context, field string, args ...string) error

	EnableAdmitWrite(ctx context.Context) error
	DisableAdmitWrite(ctx context.Context) error

	BarrierWait(ctx context.Context) error
	BarrierSignal(ctx context.Context) error
	BarrierCount(ctx context.Context) (int, error)

	Load(ctx context.Context, path string) error

	Close() error
}
