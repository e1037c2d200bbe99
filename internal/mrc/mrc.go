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

// Package mrc implements the piecewise miss-ratio curve derived from
// ghost-cache tick counters.
package mrc

import "sort"

// Curve is a non-increasing piecewise-linear function mapping cache
// size to miss ratio, defined by parallel tick/ratio arrays.
type Curve struct {
	ticks  []uint64
	ratios []float64
}

// New builds a Curve from raw (possibly noisy) tick/ratio pairs. The
// constructor coerces the ratios to their monotone (non-increasing)
// envelope by taking the cumulative minimum from right to left — the
// simplest reconciliation of sampling noise with the invariant the
// allocator requires. Coercion happens once, here; the resulting
// Curve is immutable.
func New(ticks []uint64, ratios []float64) Curve {
	n := len(ratios)
	coerced := make([]float64, n)
	copy(coerced, ratios)
	for i := n - 2; i >= 0; i-- {
		if coerced[i] < coerced[i+1] {
			coerced[i] = coerced[i+1]
		}
	}
	for i, r := range coerced {
		if r < 0 {
			coerced[i] = 0
		} else if r > 1 {
			coerced[i] = 1
		}
	}
	t := make([]uint64, n)
	copy(t, ticks)
	return Curve{ticks: t, ratios: coerced}
}

// GetMissRatio returns the miss ratio at cache size c, clamping below
// the first tick and above the last, and linearly interpolating
// between adjacent ticks otherwise.
func (c Curve) GetMissRatio(size uint64) float64 {
	if len(c.ticks) == 0 {
		return 1
	}
	if size <= c.ticks[0] {
		return c.ratios[0]
	}
	last := len(c.ticks) - 1
	if size >= c.ticks[last] {
		return c.ratios[last]
	}
	// find i such that ticks[i] <= size < ticks[i+1]
	i := sort.Search(len(c.ticks), func(i int) bool { return c.ticks[i] > size }) - 1
	if i < 0 {
		i = 0
	}
	x0, x1 := c.ticks[i], c.ticks[i+1]
	y0, y1 := c.ratios[i], c.ratios[i+1]
	if x1 == x0 {
		return y0
	}
	frac := float64(size-x0) / float64(x1-x0)
	return y0 + frac*(y1-y0)
}

// Ticks returns the curve's tick array (read-only view).
func (c Curve) Ticks() []uint64 { return c.ticks }

// Ratios returns the curve's ratio array (read-only view).
func (c Curve) Ratios() []float64 { return c.ratios }

// InverseCacheForMissRatio finds the smallest cache size achieving a
// miss ratio at most target, by linear search over ticks followed by
// linear interpolation within the bracketing segment. Returns the
// largest tick if no tick achieves target, and 0 if even the smallest
// tick already beats target.
func (c Curve) InverseCacheForMissRatio(target float64) uint64 {
	if len(c.ticks) == 0 {
		return 0
	}
	if c.ratios[0] <= target {
		return 0
	}
	for i := 0; i < len(c.ticks)-1; i++ {
		if c.ratios[i+1] <= target {
			y0, y1 := c.ratios[i], c.ratios[i+1]
			x0, x1 := c.ticks[i], c.ticks[i+1]
			if y0 == y1 {
				return x1
			}
			frac := (y0 - target) / (y0 - y1)
			return x0 + uint64(frac*float64(x1-x0))
		}
	}
	return c.ticks[len(c.ticks)-1]
}
