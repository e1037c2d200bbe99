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

package resrc

import (
	"testing"
	"time"
)

func TestEpochStatSubZipPad(t *testing.T) {
	t0 := time.Now()
	a := EpochStat{
		GhostHitCnt:  []uint64{10, 20},
		GhostMissCnt: []uint64{1, 2},
		Timestamp:    t0,
	}
	b := EpochStat{
		GhostHitCnt:  []uint64{15, 25, 25},
		GhostMissCnt: []uint64{2, 3, 3},
		Timestamp:    t0.Add(time.Second),
	}
	diff, err := b.Sub(a)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	// a is right-padded with its last element (20, 2) to length 3.
	want := []uint64{5, 5, 5}
	for i, w := range want {
		if diff.GhostHitCnt[i] != w {
			t.Errorf("GhostHitCnt[%d] = %d, want %d", i, diff.GhostHitCnt[i], w)
		}
	}
	if diff.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", diff.Duration)
	}
}

func TestEpochStatSubEmptyBothFails(t *testing.T) {
	a := EpochStat{}
	b := EpochStat{}
	if _, err := b.Sub(a); err == nil {
		t.Fatal("expected error subtracting two empty-ghost-vector snapshots")
	}
}

func TestEpochStatIsValid(t *testing.T) {
	valid := EpochStat{GhostHitCnt: []uint64{1}, GhostMissCnt: []uint64{0}}
	if !valid.IsValid() {
		t.Error("expected valid snapshot with nonzero ghost tick 0")
	}
	invalid := EpochStat{GhostHitCnt: []uint64{0}, GhostMissCnt: []uint64{0}}
	if invalid.IsValid() {
		t.Error("expected invalid snapshot with zero reads at ghost tick 0")
	}
	empty := EpochStat{}
	if empty.IsValid() {
		t.Error("expected invalid snapshot with no ghost vectors at all")
	}
}
