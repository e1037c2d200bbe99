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

package endpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"hopperalloc/internal/resrc"
)

// statsLuaScript atomically reads back the stats hash and the ghost
// tick arrays in one round trip, mirroring the idempotent-script idiom
// internal/ratelimiter/persistence/redis.go uses for commits: a single
// EVAL avoids a multi-command race against concurrent SetResrc/Stats
// updates from other tenants sharing the connection.
const statsLuaScript = `
local flat = redis.call('HGETALL', KEYS[1])
local ticks = redis.call('LRANGE', KEYS[2], 0, -1)
local hits = redis.call('LRANGE', KEYS[3], 0, -1)
local misses = redis.call('LRANGE', KEYS[4], 0, -1)
return {flat, ticks, hits, misses}
`

// RedisEndpoint is a reference CacheEndpoint backed by Redis, used by
// the demo driver in place of a real cache server (which
// is out of scope for this module). It follows the same
// redis "github.com/redis/go-redis/v9" wrapping and Lua-script idiom
// as internal/ratelimiter/persistence/redis.go.
type RedisEndpoint struct {
	client *redis.Client
	prefix string

	mu        sync.Mutex
	batch     []batchOp
	admitting bool
}

type batchOp struct {
	key string
	val *string
}

func NewRedisEndpoint(addr, prefix string) *RedisEndpoint {
	return &RedisEndpoint{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (e *RedisEndpoint) key(k string) string { return e.prefix + ":kv:" + k }

func (e *RedisEndpoint) WaitReady(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

func (e *RedisEndpoint) Get(ctx context.Context, k string) (string, bool, error) {
	v, err := e.client.Get(ctx, e.key(k)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("endpoint: redis GET %s: %w", k, err)
	}
	return v, true, nil
}

func (e *RedisEndpoint) Set(ctx context.Context, k, v string) error {
	if err := e.client.Set(ctx, e.key(k), v, 0).Err(); err != nil {
		return fmt.Errorf("endpoint: redis SET %s: %w", k, err)
	}
	return nil
}

func (e *RedisEndpoint) GetAsync(ctx context.Context, k string) (string, bool, error) {
	return e.Get(ctx, k)
}

func (e *RedisEndpoint) SetAsync(ctx context.Context, k, v string) error {
	return e.Set(ctx, k, v)
}

func (e *RedisEndpoint) BatchAdd(k string, v *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch = append(e.batch, batchOp{key: k, val: v})
}

func (e *RedisEndpoint) BatchFlush(ctx context.Context) error {
	e.mu.Lock()
	ops := e.batch
	e.batch = nil
	e.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	pipe := e.client.Pipeline()
	for _, op := range ops {
		if op.val == nil {
			pipe.Get(ctx, e.key(op.key))
		} else {
			pipe.Set(ctx, e.key(op.key), *op.val, 0)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("endpoint: redis pipeline flush: %w", err)
	}
	return nil
}

func (e *RedisEndpoint) Stats(ctx context.Context) (Stats, error) {
	raw, err := e.client.Eval(ctx, statsLuaScript, []string{
		e.prefix + ":stats", e.prefix + ":ghost:ticks", e.prefix + ":ghost:hits", e.prefix + ":ghost:misses",
	}).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("endpoint: redis stats eval: %w", err)
	}
	rows, ok := raw.([]interface{})
	if !ok || len(rows) != 4 {
		return Stats{}, fmt.Errorf("endpoint: unexpected stats eval shape")
	}
	flat := toStringSlice(rows[0])
	fields := map[string]string{}
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	return Stats{
		ReqCnt:              parseU64(fields["req_cnt"]),
		HitCnt:              parseU64(fields["hit_cnt"]),
		MissCnt:             parseU64(fields["miss_cnt"]),
		GhostTicks:          toU64Slice(toStringSlice(rows[1])),
		GhostHitCnt:         toU64Slice(toStringSlice(rows[2])),
		GhostMissCnt:        toU64Slice(toStringSlice(rows[3])),
		DBRcuConsump:        parseF64(fields["db_rcu_consump"]),
		DBWcuConsump:        parseF64(fields["db_wcu_consump"]),
		NetBwConsump:        parseF64(fields["net_bw_consump"]),
		DBRcuConsumpIfMiss:  parseF64(fields["db_rcu_consump_if_miss"]),
		NetBwConsumpIfMiss:  parseF64(fields["net_bw_consump_if_miss"]),
		NetBwConsumpIfHit:   parseF64(fields["net_bw_consump_if_hit"]),
	}, nil
}

func (e *RedisEndpoint) MemoryStats(ctx context.Context) (MemoryStats, error) {
	v, err := e.client.Get(ctx, e.prefix+":mem:allocated").Result()
	if err == redis.Nil {
		return MemoryStats{}, nil
	}
	if err != nil {
		return MemoryStats{}, fmt.Errorf("endpoint: redis memory_stats: %w", err)
	}
	return MemoryStats{TotalAllocated: parseU64(v)}, nil
}

func (e *RedisEndpoint) GetResrc(ctx context.Context) (resrc.Vector, error) {
	v, err := e.client.Get(ctx, e.prefix+":resrc").Result()
	if err == redis.Nil {
		return resrc.Vector{}, nil
	}
	if err != nil {
		return resrc.Vector{}, fmt.Errorf("endpoint: redis get_resrc: %w", err)
	}
	return resrc.ParseVector(v)
}

func (e *RedisEndpoint) SetResrc(ctx context.Context, v resrc.Vector) error {
	if err := e.client.Set(ctx, e.prefix+":resrc", v.String(), 0).Err(); err != nil {
		return fmt.Errorf("endpoint: redis set_resrc: %w", err)
	}
	return nil
}

func (e *RedisEndpoint) SetGhostRange(ctx context.Context, tick, minTick, maxTick uint64) error {
	return e.client.HSet(ctx, e.prefix+":ghost:range", "tick", tick, "min", minTick, "max", maxTick).Err()
}

func (e *RedisEndpoint) SetConfig(ctx context.Context, field string, args ...string) error {
	return e.client.HSet(ctx, e.prefix+":config", field, strings.Join(args, ",")).Err()
}

func (e *RedisEndpoint) EnableAdmitWrite(ctx context.Context) error {
	e.mu.Lock()
	e.admitting = true
	e.mu.Unlock()
	return e.client.Set(ctx, e.prefix+":admit_write", "1", 0).Err()
}

func (e *RedisEndpoint) DisableAdmitWrite(ctx context.Context) error {
	e.mu.Lock()
	e.admitting = false
	e.mu.Unlock()
	return e.client.Set(ctx, e.prefix+":admit_write", "0", 0).Err()
}

func (e *RedisEndpoint) BarrierWait(ctx context.Context) error {
	// blocks on a list push from the signaling side; BRPop honors ctx
	// cancellation via its deadline.
	_, err := e.client.BRPop(ctx, 0, e.prefix+":barrier").Result()
	if err != nil {
		return fmt.Errorf("endpoint: redis barrier_wait: %w", err)
	}
	return nil
}

func (e *RedisEndpoint) BarrierSignal(ctx context.Context) error {
	return e.client.LPush(ctx, e.prefix+":barrier", "1").Err()
}

func (e *RedisEndpoint) BarrierCount(ctx context.Context) (int, error) {
	n, err := e.client.LLen(ctx, e.prefix+":barrier").Result()
	return int(n), err
}

// Load bulk-loads a "key,val_size" CSV into the backing store, one
// SET per row with a value synthesized at the row's declared size.
func (e *RedisEndpoint) Load(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("endpoint: load open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		size, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || size < 0 {
			continue
		}
		if err := e.Set(ctx, key, strings.Repeat("v", size)); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (e *RedisEndpoint) Close() error { return e.client.Close() }

func toStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(arr))
	for i, x := range arr {
		switch t := x.(type) {
		case string:
			out[i] = t
		default:
			b, _ := json.Marshal(t)
			out[i] = string(b)
		}
	}
	return out
}

func toU64Slice(s []string) []uint64 {
	out := make([]uint64, len(s))
	for i, v := range s {
		out[i] = parseU64(v)
	}
	return out
}

func parseU64(s string) uint64 {
	var v uint64
	fmt.Sscanf(s, "%d", &v)
	return v
}

func parseF64(s string) float64 {
	var v float64
	fmt.Sscanf(s, "%g", &v)
	return v
}
