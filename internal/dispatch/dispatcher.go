// Copyright 2025 Patrick J. Scruggs
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

// Package dispatch runs fire-and-forget tasks on a fixed pool of worker
// goroutines. Dispatch never blocks: when the queue is full or the
// dispatcher is closed the task is rejected and reported to the caller's
// rejection callback instead.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueSize = 1024

var (
	// ErrQueueFull reports that a task was rejected because every queue slot
	// was taken.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrClosed reports that a task was rejected because Close was called.
	ErrClosed = errors.New("dispatch: closed")
	// ErrFlushTimeout indicates Close returned before the queue was fully drained.
	ErrFlushTimeout = errors.New("dispatch: flush timeout")
)

// Task is a unit of work executed on a worker goroutine.
type Task func()

// RejectFunc observes tasks that were not queued.
type RejectFunc func(err error)

// Config controls dispatcher behaviour.
type Config struct {
	QueueSize    int
	WorkerCount  int
	FlushTimeout time.Duration
	// ErrorWriter receives reports of panics recovered from tasks. Nil
	// silences them.
	ErrorWriter io.Writer
}

// Dispatcher owns the queue and its workers.
type Dispatcher struct {
	queue        chan Task
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error
	flushTimeout time.Duration
	errWriter    io.Writer
}

// New starts a dispatcher according to cfg. Invalid sizes are clamped.
func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	d := &Dispatcher{
		queue:        make(chan Task, cfg.QueueSize),
		flushTimeout: cfg.FlushTimeout,
		errWriter:    cfg.ErrorWriter,
	}

	d.wg.Add(cfg.WorkerCount)
	for range cfg.WorkerCount {
		go func() {
			defer d.wg.Done()
			for task := range d.queue {
				d.run(task)
			}
		}()
	}
	return d
}

// run executes task, recovering from panics so one bad task cannot stop a worker.
func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil && d.errWriter != nil {
			_, _ = fmt.Fprintf(d.errWriter, "dispatch: recovered panic from task: %v\n", r)
		}
	}()
	task()
}

// Dispatch queues task without blocking. When the task cannot be queued,
// reject (if non-nil) is called synchronously with ErrQueueFull or ErrClosed
// and Dispatch returns the same error.
func (d *Dispatcher) Dispatch(task Task, reject RejectFunc) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed.Load() {
		if reject != nil {
			reject(ErrClosed)
		}
		return ErrClosed
	}

	select {
	case d.queue <- task:
		return nil
	default:
		if reject != nil {
			reject(ErrQueueFull)
		}
		return ErrQueueFull
	}
}

// Len reports the number of queued tasks not yet picked up by a worker.
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Close stops accepting tasks and waits for queued ones to finish, bounded by
// the configured flush timeout. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.queue)
		d.mu.Unlock()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		if d.flushTimeout > 0 {
			select {
			case <-done:
			case <-time.After(d.flushTimeout):
				d.closeErr = ErrFlushTimeout
			}
		} else {
			<-done
		}
	})
	return d.closeErr
}
