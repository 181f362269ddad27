// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tasks runs keyed background tasks one at a time.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
)

// Func is a task. The context is cancelled when the scheduler stops.
type Func func(ctx context.Context)

type task struct {
	key   string
	at    time.Time
	every time.Duration
	seq   uint64
	fn    Func
}

// Scheduler executes tasks on a single worker goroutine. A task which is
// due while another one runs waits for it to finish.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	seq    uint64
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// New creates a scheduler and starts its worker.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tasks:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With("component", "tasks"),
	}
	go s.run()
	return s
}

// Schedule schedules fn to run at the given time, replacing any pending
// task with the same key.
func (s *Scheduler) Schedule(key string, at time.Time, fn Func) {
	s.add(&task{key: key, at: at, fn: fn})
}

// Every runs fn every interval, starting one interval from now. It replaces
// any pending task with the same key.
func (s *Scheduler) Every(key string, interval time.Duration, fn Func) {
	s.add(&task{key: key, at: time.Now().Add(interval), every: interval, fn: fn})
}

// Cancel removes the pending task with the given key. It reports whether
// there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	delete(s.tasks, key)
	return ok
}

// Pending returns whether a task with the given key is pending.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Stop stops the worker and waits for the running task, if any. Pending
// tasks are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) add(t *task) {
	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	s.tasks[t.key] = t
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) next() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res *task
	for _, t := range s.tasks {
		if res == nil || t.at.Before(res.at) || (t.at.Equal(res.at) && t.seq < res.seq) {
			res = t
		}
	}
	return res
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		var (
			next  = s.next()
			timer *time.Timer
			due   <-chan time.Time
		)
		if next != nil {
			d := time.Until(next.at)
			if d <= 0 {
				s.execute(next)
				continue
			}
			timer = time.NewTimer(d)
			due = timer.C
		}
		select {
		case <-s.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-due:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// execute runs t unless it has been cancelled or replaced in the meantime.
func (s *Scheduler) execute(t *task) {
	if s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if cur, ok := s.tasks[t.key]; !ok || cur.seq != t.seq {
		s.mu.Unlock()
		return
	}
	if t.every > 0 {
		t.at = time.Now().Add(t.every)
	} else {
		delete(s.tasks, t.key)
	}
	s.mu.Unlock()

	var pc panics.Catcher
	pc.Try(func() { t.fn(s.ctx) })
	if r := pc.Recovered(); r != nil {
		s.logger.Error("task panicked", "key", t.key, "panic", r.Value, "stack", string(r.Stack))
	}
}

// Debouncer coalesces bursts of triggers into a single run, Delay after
// the last trigger.
type Debouncer struct {
	Scheduler *Scheduler
	Delay     time.Duration
}

// Trigger schedules fn to run after the delay, cancelling a pending run
// with the same key.
func (d Debouncer) Trigger(key string, fn Func) {
	d.Scheduler.Schedule(key, time.Now().Add(d.Delay), fn)
}
