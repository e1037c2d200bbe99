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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"hopperalloc/internal/latency"
)

// MultiAdaptor dispatches requests across a pool of CacheEndpoints,
// one per backing shard, mirroring HopperRedisAdaptor's do_work in
// driver/client/adaptor.py. Unlike the original's plain
// (offset+shift) % len(instances) routing, MultiAdaptor uses
// rendezvous hashing over instance identities: adding or removing a
// shard only reshuffles the keys that belonged to that shard, instead
// of every key in the pool.
type MultiAdaptor struct {
	endpoints []CacheEndpoint
	router    *rendezvous.Rendezvous
	batchSize int
	batchCnts []int
	verbose   bool
}

func NewMultiAdaptor(endpoints []CacheEndpoint, batchSize int, verbose bool) *MultiAdaptor {
	nodes := make([]string, len(endpoints))
	for i := range endpoints {
		nodes[i] = strconv.Itoa(i)
	}
	return &MultiAdaptor{
		endpoints: endpoints,
		router:    rendezvous.New(nodes, xxhash.Sum64String),
		batchSize: batchSize,
		batchCnts: make([]int, len(endpoints)),
		verbose:   verbose,
	}
}

// idxForOffset returns the shard index responsible for offset,
// selected by rendezvous hashing over the offset's decimal string.
func (m *MultiAdaptor) idxForOffset(offset uint64) int {
	node := m.router.Lookup(strconv.FormatUint(offset, 10))
	idx, _ := strconv.Atoi(node)
	return idx
}

// DoWork performs one get/set against the shard owning offset, and
// records its latency if latHist is non-nil. Pipeline batching is
// used when batchSize > 0, flushing every batchSize-th call on that
// shard's connection.
func (m *MultiAdaptor) DoWork(ctx context.Context, key string, val *string, offset uint64, latHist *latency.Ring) (string, error) {
	idx := m.idxForOffset(offset)
	ep := m.endpoints[idx]

	if m.batchSize > 0 {
		ep.BatchAdd(key, val)
		m.batchCnts[idx]++
		if m.batchCnts[idx]%m.batchSize == 0 {
			begin := time.Now()
			err := ep.BatchFlush(ctx)
			if latHist != nil {
				latHist.Record(float64(time.Since(begin).Microseconds()))
			}
			return "", err
		}
		return "", nil
	}

	begin := time.Now()
	var ret string
	var err error
	if val == nil {
		var ok bool
		ret, ok, err = ep.Get(ctx, key)
		if err == nil && !ok {
			err = fmt.Errorf("endpoint: key %q not found", key)
		}
	} else {
		err = ep.Set(ctx, key, *val)
	}
	if latHist != nil {
		latHist.Record(float64(time.Since(begin).Microseconds()))
	}
	return ret, err
}

// WaitForSignal always uses the first endpoint to wait for the
// controller's barrier signal, matching the original's convention of
// treating r_list[0] as the coordination point.
func (m *MultiAdaptor) WaitForSignal(ctx context.Context) error {
	return m.endpoints[0].BarrierWait(ctx)
}
