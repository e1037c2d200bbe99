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

package mrc

import (
	"math"
	"testing"
)

func TestNewCoercesMonotoneEnvelope(t *testing.T) {
	ticks := []uint64{0, 100, 200, 300}
	noisy := []float64{0.5, 0.6, 0.3, 0.2} // index 1 violates monotonicity
	c := New(ticks, noisy)
	for i := 0; i < len(c.ratios)-1; i++ {
		if c.ratios[i] < c.ratios[i+1] {
			t.Fatalf("ratios not non-increasing at %d: %v", i, c.ratios)
		}
	}
	for _, r := range c.ratios {
		if r < 0 || r > 1 {
			t.Fatalf("ratio out of [0,1]: %v", r)
		}
	}
}

func TestGetMissRatioBoundaries(t *testing.T) {
	c := New([]uint64{100, 200, 300}, []float64{0.5, 0.3, 0.1})
	if c.GetMissRatio(0) != 0.5 {
		t.Errorf("GetMissRatio(0) = %v, want 0.5", c.GetMissRatio(0))
	}
	if c.GetMissRatio(1_000_000) != 0.1 {
		t.Errorf("GetMissRatio(big) = %v, want 0.1", c.GetMissRatio(1_000_000))
	}
}

func TestGetMissRatioInterpolates(t *testing.T) {
	c := New([]uint64{0, 100}, []float64{1.0, 0.0})
	got := c.GetMissRatio(50)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("GetMissRatio(50) = %v, want 0.5", got)
	}
}
