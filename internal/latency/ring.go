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

// Package latency implements a ring of epoch-indexed HDR histograms
// with deferred flushing, ported from
// driver/client/epoch.py::LatencyHistMgr.
package latency

import (
	"encoding/base64"
	"fmt"
	"io"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histMin    = 1
	histMax    = 1_000_000
	histSigFig = 3

	// encodingCookie selects the V2 compressed wire format, the same
	// one the original hdrh Python library emits, so blobs flushed by
	// this module decode with any standard HDR histogram reader.
	encodingCookie = 0x1c849304
)

type slot struct {
	epoch int64 // -1 means empty
	hist  *hdrhistogram.Histogram
}

func (s *slot) refresh(newEpoch int64) {
	s.epoch = newEpoch
}

func (s *slot) flush(sink io.Writer, epochDuration int64) error {
	if s.epoch < 0 {
		return fmt.Errorf("latency: cannot flush an empty slot")
	}
	blob, err := s.hist.Encode(encodingCookie)
	if err != nil {
		return fmt.Errorf("latency: encode histogram: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(blob)
	if _, err := fmt.Fprintf(sink, "%d,%s\n", s.epoch*epochDuration, b64); err != nil {
		return err
	}
	s.hist.Reset()
	s.refresh(-1)
	return nil
}

// Ring is a fixed-size array of HDR histograms, one slot per
// epoch % N, with deferred flushing of stale slots on rotation.
type Ring struct {
	slots         []*slot
	maxFlushed    int64
	sink          io.Writer
	epochDuration int64
	current       *slot
}

// NewRing constructs a Ring with numSlots histograms (range
// [1, 1_000_000] microseconds, 3 significant digits), writing flushed
// lines to sink in the format "<epoch*epoch_duration>,<base64 blob>\n".
func NewRing(numSlots int, sink io.Writer, epochDuration int64) *Ring {
	r := &Ring{
		slots:         make([]*slot, numSlots),
		maxFlushed:    -1,
		sink:          sink,
		epochDuration: epochDuration,
	}
	for i := range r.slots {
		r.slots[i] = &slot{epoch: -1, hist: hdrhistogram.New(histMin, histMax, histSigFig)}
	}
	r.RefreshEpoch(0)
	return r
}

func (r *Ring) getSlot(epoch int64) *slot {
	n := int64(len(r.slots))
	idx := epoch % n
	if idx < 0 {
		idx += n
	}
	return r.slots[idx]
}

// CurrentHistogram exposes the histogram backing the current slot, so
// a caller (the epoch manager) can read mean/min/max/percentiles
// before rotating to the next epoch.
func (r *Ring) CurrentHistogram() *hdrhistogram.Histogram { return r.current.hist }

// Record adds a latency sample (in microseconds) to the current slot.
// Must not suspend: hdrhistogram.RecordValue never blocks or
// allocates on the hot path beyond occasional bucket growth.
func (r *Ring) Record(latencyMicros float64) {
	_ = r.current.hist.RecordValue(int64(latencyMicros))
}

// RefreshEpoch sets the current slot to slots[newEpoch % N]. If that
// slot's previous occupant has epoch >= 0, every un-flushed slot up
// to (and including) that occupant's epoch is flushed first. Calling
// RefreshEpoch twice with the same newEpoch is a no-op after the
// first, since the slot is already marked with that epoch.
func (r *Ring) RefreshEpoch(newEpoch int64) {
	next := r.getSlot(newEpoch)
	if next.epoch == newEpoch {
		return
	}
	r.current = next
	if r.current.epoch >= 0 {
		r.FlushUntil(r.current.epoch)
	}
	r.current.refresh(newEpoch)
}

// FlushUntil flushes every slot whose epoch lies in
// [maxFlushed+1, untilEpoch] and is >= 0 (i.e. non-empty).
func (r *Ring) FlushUntil(untilEpoch int64) {
	begin := r.maxFlushed + 1
	r.maxFlushed = untilEpoch
	for e := begin; e <= untilEpoch; e++ {
		s := r.getSlot(e)
		if s.epoch < 0 {
			continue
		}
		_ = s.flush(r.sink, r.epochDuration)
	}
}
