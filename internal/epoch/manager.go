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

// Package epoch tracks epoch rotation, time/op-count termination, and
// per-epoch throughput/latency CSV reporting, ported from
// driver/client/epoch.py::EpochMgr.
package epoch

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"hopperalloc/internal/latency"
)

var (
	currentEpochGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hopperalloc_epoch_current",
		Help: "Current epoch index of the running client.",
	})
	tputGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hopperalloc_epoch_tput_ops_per_sec",
		Help: "Throughput observed during the most recently flushed epoch.",
	})
)

func init() {
	prometheus.MustRegister(currentEpochGauge, tputGauge)
}

// Manager tracks epoch = floor(elapsed/epochDuration), flushing a CSV
// row to dataSink on every rotation and delegating histogram rotation
// to a latency.Ring.
type Manager struct {
	latHistMgr  *latency.Ring
	dataSink    io.Writer
	epochDurSec float64

	epoch            int64
	numOps           int64
	numOpsLastEpoch  int64
	countLimit       int64 // <=0 means unlimited
	durationLimitSec float64

	elapsedLastReported float64
	numOpsLastReported  int64
}

func NewManager(latHistMgr *latency.Ring, dataSink io.Writer, epochDurationSec float64, countLimit int64, durationLimitSec float64) *Manager {
	m := &Manager{
		latHistMgr:       latHistMgr,
		dataSink:         dataSink,
		epochDurSec:      epochDurationSec,
		countLimit:       countLimit,
		durationLimitSec: durationLimitSec,
	}
	return m
}

// AddOps increments the op counter without performing any I/O.
func (m *Manager) AddOps(n int64) { m.numOps += n }

// Refresh performs at most one epoch rotation per call and returns
// whether the run is done (count or duration limit reached).
func (m *Manager) Refresh(elapsedSec float64) bool {
	newEpoch := int64(elapsedSec / m.epochDurSec)
	if newEpoch <= m.epoch {
		return false
	}
	m.flush(elapsedSec)
	m.numOpsLastEpoch = m.numOps
	m.epoch = newEpoch
	currentEpochGauge.Set(float64(newEpoch))

	if m.countLimit > 0 && m.numOps >= m.countLimit {
		return true
	}
	if m.durationLimitSec > 0 && elapsedSec >= m.durationLimitSec {
		return true
	}
	if m.latHistMgr != nil {
		m.latHistMgr.RefreshEpoch(newEpoch)
	}
	return false
}

// flush writes one CSV row:
// elapsed,epoch*epoch_duration,tput,mean,min,max,p10..p90,p99,p999
// Note "elapsed" here is wall-clock elapsed at flush time; it is not
// the same as "epoch*epoch_duration", which is the start of the
// window being reported (mirrors the original's own comment).
func (m *Manager) flush(elapsedSec float64) {
	tput := float64(m.numOps-m.numOpsLastEpoch) / m.epochDurSec
	tputGauge.Set(tput)

	var mean, min, max float64
	percentiles := make([]float64, 9) // p10..p90
	var p99, p999 float64
	if m.latHistMgr != nil {
		h := m.latHistMgr.CurrentHistogram()
		mean = h.Mean()
		min = float64(h.Min())
		max = float64(h.Max())
		for i := 0; i < 9; i++ {
			percentiles[i] = float64(h.ValueAtPercentile(float64((i + 1) * 10)))
		}
		p99 = float64(h.ValueAtPercentile(99))
		p999 = float64(h.ValueAtPercentile(99.9))
	}

	fmt.Fprintf(m.dataSink, "%.3f,%d,%g,%.0f,%.0f,%.0f,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g\n",
		elapsedSec, m.epoch*int64(m.epochDurSec), tput,
		mean, min, max,
		percentiles[0], percentiles[1], percentiles[2], percentiles[3], percentiles[4],
		percentiles[5], percentiles[6], percentiles[7], percentiles[8],
		p99, p999,
	)
}

// ReportTput returns throughput since the last time this method was
// called (not since the last epoch rotation).
func (m *Manager) ReportTput(elapsedSec float64) float64 {
	tput := float64(m.numOps-m.numOpsLastReported) / (elapsedSec - m.elapsedLastReported)
	m.elapsedLastReported = elapsedSec
	m.numOpsLastReported = m.numOps
	return tput
}

// Epoch returns the manager's current epoch index.
func (m *Manager) Epoch() int64 { return m.epoch }
