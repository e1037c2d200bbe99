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

// Package replay implements the bounded producer-consumer trace
// replay pipeline, ported from
// driver/client/workload/replay_workload.py.
package replay

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// Tuple is one accepted trace row.
type Tuple struct {
	Timestamp uint64 // ms-scale
	IsWrite   bool
	Key       string
	ValSize   uint32
}

// Mode selects pacing behavior for the consumer.
type Mode int

const (
	ModeTimestamp Mode = iota
	ModeLoop
)

const defaultQueueCapacity = 1_000_000

// Unbounded is the maxLine value callers pass to NewReader when they
// want the whole trace. maxLine itself has no "unlimited" sentinel:
// 0 means stop at line 0, i.e. read nothing but the header.
const Unbounded int64 = 1<<62 - 1

// Reader drives one background goroutine reading a CSV trace file and
// feeding a bounded channel. It implements the spec's fatal-on-crash,
// front-loaded-queue, hash-sharded, timestamp/loop-paced replay
// pipeline.
type Reader struct {
	queue chan *Tuple // nil tuple is the sentinel marking EOF/stop

	shardIdx     int
	numShards    int
	maxTimestamp uint64
	maxLine      int64

	mode    Mode
	beginTs atomic.Int64 // unix millis, reset-able at any time

	readerDone atomic.Bool
	logger     *log.Logger
}

// NewReader starts the background reader goroutine immediately. path
// is a CSV with header "timestamp,op,key,val_size". queueCapacity <=0
// uses the default of 10^6. maxLine caps the number of data rows read
// (not counting the header); pass Unbounded for "read the whole
// trace" — maxLine=0 reads zero rows and emits only the sentinel.
func NewReader(path string, mode Mode, shardIdx, numShards int, maxTimestamp uint64, maxLine int64, queueCapacity int) *Reader {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	r := &Reader{
		queue:        make(chan *Tuple, queueCapacity),
		shardIdx:     shardIdx,
		numShards:    numShards,
		maxTimestamp: maxTimestamp,
		maxLine:      maxLine,
		mode:         mode,
		logger:       log.New(os.Stderr, "[replay] ", log.LstdFlags),
	}
	r.beginTs.Store(time.Now().UnixMilli())
	go r.readLoop(path)
	return r
}

// readLoop is the sole writer goroutine for r.queue. Any unrecovered
// panic is fatal to the whole process: partial trace replay is not a
// meaningful experiment result (ErrReaderFatal, spec.md §7).
func (r *Reader) readLoop(path string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("FATAL: reader panicked: %v", rec)
			os.Exit(1)
		}
	}()
	if err := r.readTraceData(path); err != nil {
		r.logger.Printf("FATAL: reader failed: %v", err)
		os.Exit(1)
	}
}

func (r *Reader) readTraceData(path string) error {
	defer func() {
		r.readerDone.Store(true)
		r.queue <- nil // sentinel
	}()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("replay: read header: %w", err)
	}
	if len(header) < 4 {
		return fmt.Errorf("replay: malformed header %v", header)
	}

	var lineNum int64
	for {
		if lineNum >= r.maxLine {
			return nil
		}
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			r.logger.Printf("WARN: malformed row at line %d: %v", lineNum, err)
			lineNum++
			continue
		}
		lineNum++
		if len(row) < 4 {
			r.logger.Printf("WARN: skipping malformed row at line %d: %v", lineNum, row)
			continue
		}
		ts, err := strconv.ParseUint(row[0], 10, 64)
		if err != nil {
			r.logger.Printf("WARN: skipping row with bad timestamp at line %d", lineNum)
			continue
		}
		if r.maxTimestamp > 0 && ts > r.maxTimestamp {
			return nil
		}
		op := row[1]
		var isWrite bool
		switch op {
		case "get":
			isWrite = false
		case "set":
			isWrite = true
		default:
			r.logger.Printf("WARN: skipping row with unsupported op %q at line %d", op, lineNum)
			continue
		}
		key := row[2]
		valSize, err := strconv.ParseUint(row[3], 10, 32)
		if err != nil {
			r.logger.Printf("WARN: skipping row with bad val_size at line %d", lineNum)
			continue
		}
		if r.numShards > 0 && int(shardHash(key)%uint32(r.numShards)) != r.shardIdx {
			continue
		}
		r.queue <- &Tuple{Timestamp: ts, IsWrite: isWrite, Key: key, ValSize: uint32(valSize)}
	}
}

// shardHash returns sha256(key)[:4 bytes] interpreted as a big-endian
// uint32, the exact shard routing key of spec.md §4.E.
func shardHash(key string) uint32 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint32(sum[:4])
}

// WaitFrontLoaded blocks until either the queue reaches capacity or
// the reader has finished, logging progress every 5 seconds. This is
// the "front-loading" guarantee: make_req must not return before this
// completes once.
func (r *Reader) WaitFrontLoaded() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	cap := cap(r.queue)
	for {
		if len(r.queue) >= cap || r.readerDone.Load() {
			return
		}
		select {
		case <-ticker.C:
			r.logger.Printf("front-loading trace queue: %d/%d", len(r.queue), cap)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ResetBeginTs resets the reference point for timestamp-mode pacing.
func (r *Reader) ResetBeginTs() { r.beginTs.Store(time.Now().UnixMilli()) }

// MakeReq dequeues one tuple. In timestamp mode it sleeps until
// beginTs + tuple.Timestamp before returning; in loop mode it returns
// immediately. Returns ok=false once the sentinel has been consumed.
func (r *Reader) MakeReq() (t Tuple, ok bool) {
	tup := <-r.queue
	if tup == nil {
		return Tuple{}, false
	}
	if r.mode == ModeTimestamp {
		target := r.beginTs.Load() + int64(tup.Timestamp)
		if d := target - time.Now().UnixMilli(); d > 0 {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}
	}
	return *tup, true
}

// IsDone reports whether the reader has finished and the queue has
// been fully drained (the sentinel already consumed is signaled by
// MakeReq returning ok=false; callers track that themselves).
func (r *Reader) IsDone() bool {
	return r.readerDone.Load() && len(r.queue) == 0
}
