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

import "fmt"

// Distrib is the tagged variant of offset distribution a static
// workload may request: seq | unif | zipf:<theta> | scan:<theta>:<max_range>.
type Distrib struct {
	Kind     DistribKind
	Theta    float64
	MaxRange int
}

type DistribKind int

const (
	DistribSeq DistribKind = iota
	DistribUnif
	DistribZipf
	DistribScan
)

func (d Distrib) String() string {
	switch d.Kind {
	case DistribSeq:
		return "seq"
	case DistribUnif:
		return "unif"
	case DistribZipf:
		return fmt.Sprintf("zipf:%v", d.Theta)
	case DistribScan:
		return fmt.Sprintf("scan:%v:%d", d.Theta, d.MaxRange)
	default:
		return "unknown"
	}
}
