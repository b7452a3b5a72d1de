// Copyright 2020 The gVisor Authors.
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

// Package rand draws the random delays NDP schedules its messages with.
package rand

import (
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

// DurationSource draws random durations from a pseudorandom generator seeded
// from the kernel. It is safe for concurrent use.
type DurationSource struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewDurationSource returns a DurationSource seeded with getrandom(2).
func NewDurationSource() (*DurationSource, error) {
	seed, err := kernelSeed()
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	return NewDurationSourceFromSeed(seed), nil
}

// NewDurationSourceFromSeed returns a DurationSource with a fixed seed, giving
// a reproducible sequence.
func NewDurationSourceFromSeed(seed int64) *DurationSource {
	return &DurationSource{r: mrand.New(mrand.NewSource(seed))}
}

// UniformDuration returns a duration drawn uniformly from [0, max). A
// non-positive max yields 0.
func (s *DurationSource) UniformDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.r.Int63n(int64(max)))
}
