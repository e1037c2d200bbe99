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

// Package errs centralizes the sentinel errors shared across the
// allocator's subsystems so callers can classify a failure with
// errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrParse marks a malformed workload/resource/trace string or row.
	ErrParse = errors.New("errs: parse error")

	// ErrNoProgress marks a tenant poll that observed no reads in the
	// statistics window. Recovered locally by the controller.
	ErrNoProgress = errors.New("errs: no progress observed in statistics window")

	// ErrReaderFatal marks a trace reader goroutine that terminated on
	// an unrecoverable condition. The process exits on this error.
	ErrReaderFatal = errors.New("errs: trace reader terminated fatally")

	// ErrEndpointUnreachable marks a Cache Endpoint call that failed
	// after transport-level retries were exhausted.
	ErrEndpointUnreachable = errors.New("errs: cache endpoint unreachable")

	// ErrBudgetExhaustion marks a boost/gradual apply that reached its
	// deadline with pending work still outstanding.
	ErrBudgetExhaustion = errors.New("errs: apply deadline exhausted with pending work")

	// ErrBarrierAbort marks a client that exited before reaching the
	// synchronization barrier. Fatal.
	ErrBarrierAbort = errors.New("errs: client aborted before barrier")

	// ErrCheckpointMismatch marks a checkpoint whose workload parameters
	// do not match the running configuration. Fatal.
	ErrCheckpointMismatch = errors.New("errs: checkpoint parameter mismatch")

	// ErrDataIntegrity marks a get() whose value failed the quick-check
	// predicate in check mode. Fatal.
	ErrDataIntegrity = errors.New("errs: data integrity check failed")
)
