// Copyright 2025 go-highway Authors
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

package jit

import (
	"fmt"
	"slices"
	"sync"
)

// Stage is a state of one compilation attempt.
type Stage uint8

const (
	StageNone Stage = iota

	// StageBuilt: source text assembled.
	StageBuilt

	// StageWritten: source persisted in the cache directory.
	StageWritten

	// StageFormatted: formatter ran or was skipped. Its failures are ignored.
	StageFormatted

	// StageCompiled: shared library produced.
	StageCompiled

	// StageLoaded: library opened.
	StageLoaded

	// StageResolved: entry symbol found.
	StageResolved

	// StageReady: kernel handed to the caller.
	StageReady
)

// String returns a human-readable name for the Stage.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageBuilt:
		return "built"
	case StageWritten:
		return "written"
	case StageFormatted:
		return "formatted"
	case StageCompiled:
		return "compiled"
	case StageLoaded:
		return "loaded"
	case StageResolved:
		return "resolved"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// StageError reports the stage a compilation failed to reach.
type StageError struct {
	Stage Stage
	ID    int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("compilation %d: %v: %v", e.ID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Progress records the stages one compilation went through. A toolchain
// reports the stages it owns; stages only move forward.
type Progress struct {
	mu     sync.Mutex
	id     int
	stages []Stage
}

func newProgress(id int) *Progress {
	return &Progress{id: id}
}

// Reach records s unless a later stage was recorded already.
func (p *Progress) Reach(s Stage) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.stages); n != 0 && p.stages[n-1] >= s {
		return
	}

	p.stages = append(p.stages, s)
}

// Last returns the latest recorded stage.
func (p *Progress) Last() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.stages) == 0 {
		return StageNone
	}

	return p.stages[len(p.stages)-1]
}

// Stages returns the recorded stages in order.
func (p *Progress) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.stages)
}

// fail wraps err as a failure to reach the stage after the last one.
func (p *Progress) fail(err error) error {
	return &StageError{Stage: p.Last() + 1, ID: p.id, Err: err}
}
