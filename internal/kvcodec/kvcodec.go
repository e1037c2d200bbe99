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

// Package kvcodec implements the deterministic fixed-width key/value
// encoding used by the synthetic workload generator, ported from
// driver/client/workload/kv_format.py.
package kvcodec

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// FormatParams are the derived field widths for a given (key_size,
// val_size) pair.
type FormatParams struct {
	KeySize   int
	ValSize   int
	SizeLen   int
	OffsetLen int
	KPad      int
	VPad      int
}

func decimalLen(n int) int {
	return len(strconv.Itoa(n))
}

// GetFormatParams computes the field widths make_key/make_val use.
// Requires offset_len > 0 and both pads to be non-negative.
func GetFormatParams(keySize, valSize int) (FormatParams, error) {
	sizeLen := decimalLen(keySize)
	if l := decimalLen(valSize); l > sizeLen {
		sizeLen = l
	}
	least := keySize
	if valSize < least {
		least = valSize
	}
	leastLenLeft := least - 3 - sizeLen
	offsetLen := 10
	if leastLenLeft < offsetLen {
		offsetLen = leastLenLeft
	}
	if offsetLen <= 0 {
		return FormatParams{}, fmt.Errorf("kvcodec: offset_len must be positive, got %d (key_size=%d, val_size=%d)", offsetLen, keySize, valSize)
	}
	kPad := keySize - 3 - sizeLen - offsetLen
	vPad := valSize - 3 - sizeLen - offsetLen
	if kPad < 0 || vPad < 0 {
		return FormatParams{}, fmt.Errorf("kvcodec: negative padding (kPad=%d, vPad=%d) for key_size=%d, val_size=%d", kPad, vPad, keySize, valSize)
	}
	return FormatParams{
		KeySize:   keySize,
		ValSize:   valSize,
		SizeLen:   sizeLen,
		OffsetLen: offsetLen,
		KPad:      kPad,
		VPad:      vPad,
	}, nil
}

func zfill(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// MakeKey builds the fixed-width key for offset o: "K" + zfill(o) +
// "s" + zfill(key_size) + "E"*kPad + "Y", exactly key_size bytes long.
func MakeKey(o int, p FormatParams) string {
	var b strings.Builder
	b.Grow(p.KeySize)
	b.WriteByte('K')
	b.WriteString(zfill(o, p.OffsetLen))
	b.WriteByte('s')
	b.WriteString(zfill(p.KeySize, p.SizeLen))
	b.WriteString(strings.Repeat("E", p.KPad))
	b.WriteByte('Y')
	return b.String()
}

// MakeVal builds the fixed-width value for offset o: "V" + zfill(o) +
// "s" + zfill(val_size) + "A"*vPad + "L", exactly val_size bytes long.
func MakeVal(o int, p FormatParams) string {
	var b strings.Builder
	b.Grow(p.ValSize)
	b.WriteByte('V')
	b.WriteString(zfill(o, p.OffsetLen))
	b.WriteByte('s')
	b.WriteString(zfill(p.ValSize, p.SizeLen))
	b.WriteString(strings.Repeat("A", p.VPad))
	b.WriteByte('L')
	return b.String()
}

const randAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// genRandStr returns a random alphanumeric string of length n,
// matching gen_rand_str in the original kv_format.py.
func genRandStr(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randAlphabet[int(b)%len(randAlphabet)]
	}
	return string(out)
}

// MakeValRandomized builds a value like MakeVal but replaces the pad
// region with random alphanumeric characters instead of a fixed fill
// character, for workloads that should not compress trivially.
func MakeValRandomized(o int, p FormatParams) string {
	var b strings.Builder
	b.Grow(p.ValSize)
	b.WriteByte('V')
	b.WriteString(zfill(o, p.OffsetLen))
	b.WriteByte('s')
	b.WriteString(zfill(p.ValSize, p.SizeLen))
	b.WriteString(genRandStr(p.VPad))
	b.WriteByte('L')
	return b.String()
}

// CheckQuick validates that actual looks like the value MakeVal(o, p)
// would have produced: it must have the expected length, and when
// useRand is false the first 32 bytes (or the whole string if
// shorter) must match byte-for-byte.
func CheckQuick(o int, actual string, p FormatParams, useRand bool) bool {
	if len(actual) != p.ValSize {
		return false
	}
	if useRand {
		return true
	}
	expected := MakeVal(o, p)
	n := 32
	if len(expected) < n {
		n = len(expected)
	}
	return expected[:n] == actual[:n]
}
