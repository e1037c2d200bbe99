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

// Package workload turns offset streams into read/write requests and
// drives static and time-bounded dynamic workload schedules, ported
// from driver/client/workload/{base,distrib,synthetic_workload}.py.
package workload

// Req is a single request: Keys holds one or more keys (more than one
// only for a scan read), Val is nil for a read, and Offsets mirrors
// Keys positionally.
type Req struct {
	Keys    []string
	Val     *string
	Offsets []uint64
}

// IsSingle reports whether this is a point request (as opposed to a
// multi-key scan read).
func (r Req) IsSingle() bool { return len(r.Keys) == 1 }

// IsWrite reports whether this request carries a value to write.
func (r Req) IsWrite() bool { return r.Val != nil }

// ReqGenEngine produces requests for one phase of a workload schedule
// and reports when that phase's time budget is spent.
type ReqGenEngine interface {
	MakeReq() Req
	IsDone(elapsedSeconds float64) bool
}

// Workload is anything that can build the sequence of request
// generator engines driving an experiment.
type Workload interface {
	BuildReqGen() []ReqGenEngine
}
