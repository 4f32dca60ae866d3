// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package blockqueue implements a bounded FIFO queue of arbitrary
// items (blockpool uses it to move *blockpool.Block values between
// producers and a single writer). It supports timed push and pop,
// plus a one-way seal operation that propagates end-of-stream to
// blocked peers without requiring either side to poll a flag.
package blockqueue

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/retry"
)

// Outcome distinguishes why a Push or Pop returned, since callers'
// retry policies differ by outcome: TimedOut should be retried after
// sleeping the same duration; Closed should terminate the loop.
type Outcome int

const (
	// OK indicates the push or pop completed normally.
	OK Outcome = iota
	// TimedOut indicates no slot (push) or item (pop) became
	// available within the requested timeout. The caller should
	// sleep for the same duration and retry.
	TimedOut
	// Closed indicates the queue was sealed: for Push, no further
	// items will be accepted; for Pop, the queue was sealed and is
	// now empty.
	Closed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case TimedOut:
		return "timed-out"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// spinAttempts bounds the number of hardware-spin probes a Push or
// Pop makes before parking on a timer. Spinning first avoids paying
// for a timer allocation and a goroutine park on the (common) case
// where the peer is keeping pace.
const spinAttempts = 4

// Queue is a bounded, thread-safe FIFO. The zero value is not usable;
// construct with New. A Queue is safe for concurrent use by any
// number of pushers and poppers.
type Queue struct {
	ch       chan interface{}
	sealedCh chan struct{}
	sealed   atomix.Bool
	sealOnce sync.Once
}

// New creates an empty Queue with room for capacity items.
func New(capacity int) *Queue {
	return &Queue{
		ch:       make(chan interface{}, capacity),
		sealedCh: make(chan struct{}),
	}
}

// Push enqueues item, blocking for up to timeout if the queue is
// full. It returns Closed if the queue has been sealed (whether or
// not this call raced the seal), TimedOut if no slot freed up within
// timeout, or OK on success.
//
// The caller MUST retry on TimedOut (after sleeping timeout) to
// preserve progress when the consumer is simply slow.
func (q *Queue) Push(item interface{}, timeout time.Duration) (Outcome, error) {
	if q.sealed.Load() {
		return Closed, nil
	}
	sw := spin.Wait{}
	for i := 0; i < spinAttempts; i++ {
		select {
		case q.ch <- item:
			return OK, nil
		case <-q.sealedCh:
			return Closed, nil
		default:
			sw.Once()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- item:
		return OK, nil
	case <-q.sealedCh:
		return Closed, nil
	case <-timer.C:
		return TimedOut, nil
	}
}

// Pop removes and returns the oldest item, blocking for up to
// timeout if the queue is empty. It returns Closed iff the queue is
// sealed and empty (draining any items buffered before the seal
// first), TimedOut if nothing arrived within timeout, or OK with the
// popped item.
func (q *Queue) Pop(timeout time.Duration) (interface{}, Outcome, error) {
	sw := spin.Wait{}
	for i := 0; i < spinAttempts; i++ {
		select {
		case item := <-q.ch:
			return item, OK, nil
		default:
			if q.sealed.Load() && len(q.ch) == 0 {
				return nil, Closed, nil
			}
			sw.Once()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case item := <-q.ch:
			return item, OK, nil
		case <-timer.C:
			if q.sealed.Load() && len(q.ch) == 0 {
				return nil, Closed, nil
			}
			return nil, TimedOut, nil
		}
	}
}

// PushUntil retries Push, one attempt per policy.Retry(attempt), until
// an attempt returns something other than TimedOut or policy gives up
// (reported as errors.TimedOut). This is the single place the bounded
// queue's documented retry contract lives: callers configure pacing
// via policy instead of each hand-rolling a "push; on TimedOut, sleep,
// retry" loop of their own.
func (q *Queue) PushUntil(item interface{}, policy retry.Policy) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		keepGoing, wait := policy.Retry(attempt)
		if !keepGoing {
			return TimedOut, errors.E(errors.TimedOut, "blockqueue: gave up retrying push")
		}
		outcome, err := q.Push(item, wait)
		if err != nil || outcome != TimedOut {
			return outcome, err
		}
	}
}

// PopUntil is Pop's PushUntil counterpart.
func (q *Queue) PopUntil(policy retry.Policy) (interface{}, Outcome, error) {
	for attempt := 0; ; attempt++ {
		keepGoing, wait := policy.Retry(attempt)
		if !keepGoing {
			return nil, TimedOut, errors.E(errors.TimedOut, "blockqueue: gave up retrying pop")
		}
		item, outcome, err := q.Pop(wait)
		if err != nil || outcome != TimedOut {
			return item, outcome, err
		}
	}
}

// Seal marks the queue so that subsequent Push calls return Closed
// and subsequent Pop calls return Closed once the queue has drained.
// Seal is idempotent and safe to call concurrently with Push and Pop.
func (q *Queue) Seal() {
	q.sealOnce.Do(func() {
		q.sealed.Store(true)
		close(q.sealedCh)
	})
}

// Sealed reports whether Seal has been called.
func (q *Queue) Sealed() bool {
	return q.sealed.Load()
}

// Len returns the number of items currently buffered. It is intended
// for diagnostics and tests; under concurrent use the value is
// already stale by the time the caller observes it.
func (q *Queue) Len() int {
	return len(q.ch)
}
