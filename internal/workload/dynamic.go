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

package workload

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkloadSchedule pairs a static workload phase with the elapsed time
// (in seconds) at which it ends; untilTime <= 0 means unbounded.
type WorkloadSchedule struct {
	UntilTime float64
	Workload  StaticWorkload
}

// DynamicWorkload is an ordered sequence of static workload phases,
// each with its own elapsed-time deadline.
type DynamicWorkload struct {
	Schedule []WorkloadSchedule
}

// ParseDynamicWorkload parses
// "n=...,k=...,v=...,w=...,d=...@t[min|sec];...". A leading "~" in a
// phase clones the previous static workload and overlays named
// overrides; "t" may be omitted (defaults to 0, i.e. unbounded).
func ParseDynamicWorkload(s string) (DynamicWorkload, error) {
	var dw DynamicWorkload
	for _, subSched := range strings.Split(s, ";") {
		subSched = strings.TrimSpace(subSched)
		if subSched == "" {
			continue
		}
		splitRes := strings.SplitN(subSched, "@", 2)
		wlStr := splitRes[0]
		untilTimeStr := "0"
		if len(splitRes) == 2 {
			untilTimeStr = splitRes[1]
		}
		untilTime, err := parseUntilTime(untilTimeStr)
		if err != nil {
			return DynamicWorkload{}, err
		}

		var wl StaticWorkload
		if strings.HasPrefix(wlStr, "~") {
			if len(dw.Schedule) == 0 {
				return DynamicWorkload{}, fmt.Errorf("workload: %q clones previous workload but none precedes it", subSched)
			}
			prev := dw.Schedule[len(dw.Schedule)-1].Workload
			wl, err = ParseStaticWorkload(wlStr[1:], &prev, true)
		} else {
			wl, err = ParseStaticWorkload(wlStr, nil, false)
		}
		if err != nil {
			return DynamicWorkload{}, err
		}
		dw.Schedule = append(dw.Schedule, WorkloadSchedule{UntilTime: untilTime, Workload: wl})
	}
	return dw, nil
}

func parseUntilTime(s string) (float64, error) {
	switch {
	case strings.HasSuffix(s, "min"):
		n, err := strconv.ParseFloat(s[:len(s)-3], 64)
		if err != nil {
			return 0, fmt.Errorf("workload: until_time %q: %w", s, err)
		}
		return n * 60, nil
	case strings.HasSuffix(s, "sec"):
		n, err := strconv.ParseFloat(s[:len(s)-3], 64)
		if err != nil {
			return 0, fmt.Errorf("workload: until_time %q: %w", s, err)
		}
		return n, nil
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("workload: until_time %q: %w", s, err)
		}
		return n, nil
	}
}

func (dw DynamicWorkload) String() string {
	parts := make([]string, len(dw.Schedule))
	for i, sched := range dw.Schedule {
		parts[i] = fmt.Sprintf("%s@%v", sched.Workload, sched.UntilTime)
	}
	return strings.Join(parts, ";")
}

func (dw DynamicWorkload) BuildReqGen() []ReqGenEngine {
	engines := make([]ReqGenEngine, len(dw.Schedule))
	for i, sched := range dw.Schedule {
		engines[i] = NewOffsetReqGenEngine(sched.Workload, sched.UntilTime)
	}
	return engines
}

// First returns the first phase's static workload.
func (dw DynamicWorkload) First() StaticWorkload { return dw.Schedule[0].Workload }

// Last returns the last phase's static workload.
func (dw DynamicWorkload) Last() StaticWorkload { return dw.Schedule[len(dw.Schedule)-1].Workload }
