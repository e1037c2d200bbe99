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

// Package offset produces key offsets under sequential, uniform,
// Zipfian, and scan-range distributions, matching the DBx1000-derived
// generator used by the original workload driver.
package offset

import (
	"math"
	"math/rand"
)

// Offset is the result of a single generator draw: either a single
// offset (for Seq/Uniform/Zipf) or a run of offsets (for ScanRange).
type Offset struct {
	One  uint64
	Many []uint64
}

// Generator produces key offsets and supports resizing the working
// set at runtime.
type Generator interface {
	NextOffset(rng *rand.Rand) Offset
	SetWorkingSet(n uint64)
}

// Seq is a monotone counter modulo the working-set size.
type Seq struct {
	n    uint64
	next uint64
}

func NewSeq(n uint64) *Seq { return &Seq{n: n} }

func (s *Seq) SetWorkingSet(n uint64) { s.n = n }

func (s *Seq) NextOffset(_ *rand.Rand) Offset {
	o := s.next % s.n
	s.next++
	return Offset{One: o}
}

// Uniform draws offsets uniformly from [0, n).
type Uniform struct {
	n uint64
}

func NewUniform(n uint64) *Uniform { return &Uniform{n: n} }

func (u *Uniform) SetWorkingSet(n uint64) { u.n = n }

func (u *Uniform) NextOffset(rng *rand.Rand) Offset {
	return Offset{One: uint64(rng.Int63n(int64(u.n)))}
}

// zipfGtor implements the classic DBx1000 Zipfian generator, ported
// term for term from driver/client/workload/offset.py::ZipfGtor. The
// original produces offsets in [1, n]; this port shifts to [0, n).
type zipfGtor struct {
	n     uint64
	theta float64
	denom float64
	eta   float64
	alpha float64
}

func newZipfGtor(n uint64, theta float64) *zipfGtor {
	g := &zipfGtor{n: n, theta: theta}
	g.denom = zeta(n, theta)
	g.eta = (1 - math.Pow(2.0/float64(n), 1-theta)) / (1 - zeta(2, theta)/g.denom)
	g.alpha = 1 / (1 - theta)
	return g
}

func zeta(n uint64, theta float64) float64 {
	sum := 0.0
	for i := uint64(1); i <= n; i++ {
		sum += math.Pow(1.0/float64(i), theta)
	}
	return sum
}

func (g *zipfGtor) zipf(rng *rand.Rand) uint64 {
	u := rng.Float64()
	uz := u * g.denom
	if uz < 1 {
		return 0
	}
	if uz < 1+math.Pow(0.5, g.theta) {
		return 1
	}
	return uint64(float64(g.n) * math.Pow(g.eta*u-g.eta+1, g.alpha))
}

// Zipf draws offsets under a Zipfian distribution with skew theta.
// The generator is rebuilt whenever the working set or theta changes,
// since the precomputed zeta/eta/alpha constants depend on both.
type Zipf struct {
	n     uint64
	theta float64
	g     *zipfGtor
}

func NewZipf(n uint64, theta float64) *Zipf {
	return &Zipf{n: n, theta: theta, g: newZipfGtor(n, theta)}
}

func (z *Zipf) SetWorkingSet(n uint64) {
	z.n = n
	z.g = newZipfGtor(n, z.theta)
}

func (z *Zipf) SetTheta(theta float64) {
	z.theta = theta
	z.g = newZipfGtor(z.n, theta)
}

func (z *Zipf) NextOffset(rng *rand.Rand) Offset {
	return Offset{One: z.g.zipf(rng)}
}
