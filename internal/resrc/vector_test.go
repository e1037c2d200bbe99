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
	"math"
	"testing"
)

func TestParseHuman(t *testing.T) {
	cases := []struct {
		in     string
		binary bool
		want   float64
	}{
		{"1024", true, 1024},
		{"1K", false, 1000},
		{"1Ki", false, 1024},
		{"1M", false, 1e6},
		{"1Mi", true, 1 << 20},
		{"1G", false, 1e9},
		{"1Gi", true, 1 << 30},
		{"2.5K", false, 2500},
	}
	for _, c := range cases {
		got, err := ParseHuman(c.in, c.binary)
		if err != nil {
			t.Fatalf("ParseHuman(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseHuman(%q, binary=%v) = %v, want %v", c.in, c.binary, got, c.want)
		}
	}
}

func TestParseVectorRoundTrip(t *testing.T) {
	v, err := ParseVector("1Gi,1000,100,10Mi")
	if err != nil {
		t.Fatalf("ParseVector: %v", err)
	}
	want := Vector{CacheSize: 1 << 30, DBRcu: 1000, DBWcu: 100, NetBw: 10 << 20}
	if v != want {
		t.Errorf("ParseVector = %+v, want %+v", v, want)
	}
}

func TestVectorAddSubIdentity(t *testing.T) {
	a := Vector{CacheSize: 1 << 30, DBRcu: 100, DBWcu: 50, NetBw: 1e6}
	b := Vector{CacheSize: 1 << 20, DBRcu: 10, DBWcu: 5, NetBw: 1e3}
	got := a.Add(b).Sub(b)
	if got != a {
		t.Errorf("(a+b)-b = %+v, want %+v", got, a)
	}
}

func TestVectorScaleInverse(t *testing.T) {
	a := Vector{CacheSize: 1 << 20, DBRcu: 100, DBWcu: 50, NetBw: 1000}
	k := 4.0
	got := a.Scale(k).Scale(1 / k)
	if math.Abs(got.DBRcu-a.DBRcu) > 1e-9 || math.Abs(got.DBWcu-a.DBWcu) > 1e-9 || math.Abs(got.NetBw-a.NetBw) > 1e-9 {
		t.Errorf("(a*k)*(1/k) = %+v, want %+v", got, a)
	}
}

func TestFromVecToVecBijection(t *testing.T) {
	a := Vector{CacheSize: 12345, DBRcu: 1.5, DBWcu: 2.5, NetBw: 3.5}
	got := FromVec(a.ToVec())
	if got != a {
		t.Errorf("FromVec(ToVec(a)) = %+v, want %+v", got, a)
	}
}
