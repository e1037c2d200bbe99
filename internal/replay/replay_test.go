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

package replay

import (
	"os"
	"testing"
)

func writeTrace(t *testing.T, rows [][4]string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "trace-*.csv")
	if err != nil {
		t.Fatalf("create temp trace: %v", err)
	}
	defer f.Close()
	f.WriteString("timestamp,op,key,val_size\n")
	for _, r := range rows {
		f.WriteString(r[0] + "," + r[1] + "," + r[2] + "," + r[3] + "\n")
	}
	return f.Name()
}

func TestReaderReplaysAllRowsInOrder(t *testing.T) {
	path := writeTrace(t, [][4]string{
		{"0", "get", "k1", "100"},
		{"0", "set", "k2", "200"},
		{"0", "get", "k3", "100"},
	})
	r := NewReader(path, ModeLoop, 0, 1, 0, Unbounded, 16)
	r.WaitFrontLoaded()

	var got []Tuple
	for {
		tup, ok := r.MakeReq()
		if !ok {
			break
		}
		got = append(got, tup)
	}
	if len(got) != 3 {
		t.Fatalf("got %d tuples, want 3", len(got))
	}
	if got[1].IsWrite != true || got[1].Key != "k2" || got[1].ValSize != 200 {
		t.Fatalf("unexpected second tuple: %+v", got[1])
	}
}

func TestReaderHonorsMaxTimestamp(t *testing.T) {
	path := writeTrace(t, [][4]string{
		{"0", "get", "k1", "100"},
		{"500", "get", "k2", "100"},
		{"1500", "get", "k3", "100"},
	})
	r := NewReader(path, ModeLoop, 0, 1, 1000, Unbounded, 16)
	r.WaitFrontLoaded()

	var n int
	for {
		_, ok := r.MakeReq()
		if !ok {
			break
		}
		n++
	}
	if n != 2 {
		t.Fatalf("got %d tuples within maxTimestamp=1000, want 2", n)
	}
}

func TestReaderHonorsMaxLine(t *testing.T) {
	path := writeTrace(t, [][4]string{
		{"0", "get", "k1", "100"},
		{"0", "get", "k2", "100"},
		{"0", "get", "k3", "100"},
	})
	r := NewReader(path, ModeLoop, 0, 1, 0, 2, 16)
	r.WaitFrontLoaded()

	var n int
	for {
		_, ok := r.MakeReq()
		if !ok {
			break
		}
		n++
	}
	if n != 2 {
		t.Fatalf("got %d tuples with maxLine=2, want 2", n)
	}
}

func TestReaderMaxLineZeroProducesOnlySentinel(t *testing.T) {
	path := writeTrace(t, [][4]string{
		{"0", "get", "k1", "100"},
		{"0", "get", "k2", "100"},
	})
	r := NewReader(path, ModeLoop, 0, 1, 0, 0, 16)
	r.WaitFrontLoaded()

	tup, ok := r.MakeReq()
	if ok {
		t.Fatalf("maxLine=0: got tuple %+v, want immediate sentinel", tup)
	}
}

func TestShardRoutingIsStable(t *testing.T) {
	const numShards = 4
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	for _, k := range keys {
		h1 := shardHash(k) % numShards
		h2 := shardHash(k) % numShards
		if h1 != h2 {
			t.Fatalf("shardHash(%q) not stable: %d vs %d", k, h1, h2)
		}
	}
}

func TestReaderFiltersToOwnShard(t *testing.T) {
	rows := [][4]string{
		{"0", "get", "key-0", "100"},
		{"0", "get", "key-1", "100"},
		{"0", "get", "key-2", "100"},
		{"0", "get", "key-3", "100"},
	}
	path := writeTrace(t, rows)

	const numShards = 2
	total := 0
	for shard := 0; shard < numShards; shard++ {
		r := NewReader(path, ModeLoop, shard, numShards, 0, Unbounded, 16)
		r.WaitFrontLoaded()
		for {
			_, ok := r.MakeReq()
			if !ok {
				break
			}
			total++
		}
	}
	if total != len(rows) {
		t.Fatalf("sharded readers together replayed %d rows, want %d", total, len(rows))
	}
}

func TestIsDoneAfterDrain(t *testing.T) {
	path := writeTrace(t, [][4]string{{"0", "get", "k1", "100"}})
	r := NewReader(path, ModeLoop, 0, 1, 0, Unbounded, 16)
	r.WaitFrontLoaded()
	for {
		_, ok := r.MakeReq()
		if !ok {
			break
		}
	}
	if !r.IsDone() {
		t.Fatal("expected IsDone() once sentinel has been consumed and reader finished")
	}
}
