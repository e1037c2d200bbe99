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

package kvcodec

import "testing"

func TestMakeKeyLengthAndRoundTrip(t *testing.T) {
	p, err := GetFormatParams(24, 100)
	if err != nil {
		t.Fatalf("GetFormatParams: %v", err)
	}
	for _, o := range []int{0, 1, 42, 999} {
		k := MakeKey(o, p)
		if len(k) != p.KeySize {
			t.Fatalf("MakeKey(%d) length = %d, want %d", o, len(k), p.KeySize)
		}
		v := MakeVal(o, p)
		if len(v) != p.ValSize {
			t.Fatalf("MakeVal(%d) length = %d, want %d", o, len(v), p.ValSize)
		}
		if !CheckQuick(o, v, p, false) {
			t.Fatalf("CheckQuick failed for offset %d", o)
		}
	}
}

func TestGetFormatParamsRejectsTooSmallSizes(t *testing.T) {
	if _, err := GetFormatParams(4, 4); err == nil {
		t.Fatal("expected error for key/val sizes too small to fit the fixed fields")
	}
}

func TestCheckQuickDetectsCorruption(t *testing.T) {
	p, err := GetFormatParams(24, 100)
	if err != nil {
		t.Fatalf("GetFormatParams: %v", err)
	}
	v := MakeVal(5, p)
	corrupted := MakeVal(6, p)
	if CheckQuick(5, corrupted, p, false) {
		t.Fatal("CheckQuick should reject a value encoded for a different offset")
	}
	if !CheckQuick(5, v, p, false) {
		t.Fatal("CheckQuick should accept the correctly encoded value")
	}
}
