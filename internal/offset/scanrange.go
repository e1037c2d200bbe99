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

package offset

import (
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// scanRangeCache holds, per working-set size, a permutation of
// [0, n) sorted by sortKey, the 64-bit xxhash of each offset's
// big-endian bytes. Shared process-wide across all ScanRange generators with
// the same n, mirroring _scan_sorted_range_cache in
// driver/client/workload/offset.py.
var scanRangeCache sync.Map // map[uint64][]uint64

func sortKey(offset uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], offset)
	return xxhash.Sum64(buf[:])
}

func sortedRangeFor(n uint64) []uint64 {
	if v, ok := scanRangeCache.Load(n); ok {
		return v.([]uint64)
	}
	perm := make([]uint64, n)
	for i := range perm {
		perm[i] = uint64(i)
	}
	sort.Slice(perm, func(i, j int) bool { return sortKey(perm[i]) < sortKey(perm[j]) })
	actual, _ := scanRangeCache.LoadOrStore(n, perm)
	return actual.([]uint64)
}

// ScanRange generates scan start offsets via Zipf and returns `size`
// consecutive entries (size drawn uniformly in [1, maxRange]) from the
// process-wide hash-sorted permutation, so that scanned keys are not
// physically adjacent in the Zipf hot region. Designed for YCSB-E
// style workloads.
type ScanRange struct {
	n          uint64
	theta      float64
	maxRange   int
	g          *zipfGtor
	sortedRange []uint64
}

func NewScanRange(n uint64, theta float64, maxRange int) *ScanRange {
	s := &ScanRange{n: n, theta: theta, maxRange: maxRange}
	s.g = newZipfGtor(n, theta)
	s.sortedRange = sortedRangeFor(n)
	return s
}

func (s *ScanRange) SetWorkingSet(n uint64) {
	s.n = n
	s.g = newZipfGtor(n, s.theta)
	s.sortedRange = sortedRangeFor(n)
}

func (s *ScanRange) SetTheta(theta float64) {
	s.theta = theta
	s.g = newZipfGtor(s.n, theta)
}

// scan returns `size` consecutive entries of the hash-sorted
// permutation starting at the first index whose key is >= the key of
// beginOffset.
func (s *ScanRange) scan(beginOffset uint64, size int) []uint64 {
	beginKey := sortKey(beginOffset)
	beginIdx := sort.Search(len(s.sortedRange), func(i int) bool {
		return sortKey(s.sortedRange[i]) >= beginKey
	})
	for beginIdx < len(s.sortedRange) && s.sortedRange[beginIdx] < beginOffset && sortKey(s.sortedRange[beginIdx]) == beginKey {
		beginIdx++
	}
	out := make([]uint64, size)
	n := len(s.sortedRange)
	for i := 0; i < size; i++ {
		out[i] = s.sortedRange[(beginIdx+i)%n]
	}
	return out
}

func (s *ScanRange) NextOffset(rng *rand.Rand) Offset {
	scanSize := 1 + rng.Intn(s.maxRange)
	beginOffset := s.g.zipf(rng)
	return Offset{Many: s.scan(beginOffset, scanSize)}
}
