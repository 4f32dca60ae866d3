// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockqueue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbi-sra/fasterq-go/blockqueue"
	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/retry"
)

func TestPushPopFIFO(t *testing.T) {
	q := blockqueue.New(4)
	for i := 0; i < 4; i++ {
		outcome, err := q.Push(i, time.Second)
		require.NoError(t, err)
		require.Equal(t, blockqueue.OK, outcome)
	}
	for i := 0; i < 4; i++ {
		v, outcome, err := q.Pop(time.Second)
		require.NoError(t, err)
		require.Equal(t, blockqueue.OK, outcome)
		require.Equal(t, i, v)
	}
}

func TestPushTimedOut(t *testing.T) {
	q := blockqueue.New(1)
	_, err := q.Push(1, time.Second)
	require.NoError(t, err)
	outcome, err := q.Push(2, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, blockqueue.TimedOut, outcome)
}

func TestPopTimedOut(t *testing.T) {
	q := blockqueue.New(1)
	_, outcome, err := q.Pop(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, blockqueue.TimedOut, outcome)
}

func TestPushUntilRetriesPastTimedOut(t *testing.T) {
	q := blockqueue.New(1)
	_, err := q.Push("occupied", time.Second)
	require.NoError(t, err)

	policy := retry.Backoff(5*time.Millisecond, 5*time.Millisecond, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		outcome, err := q.PushUntil("queued", policy)
		require.NoError(t, err)
		assert.Equal(t, blockqueue.OK, outcome)
	}()

	v, outcome, err := q.Pop(time.Second)
	require.NoError(t, err)
	require.Equal(t, blockqueue.OK, outcome)
	assert.Equal(t, "occupied", v)
	<-done

	v, outcome, err = q.Pop(time.Second)
	require.NoError(t, err)
	require.Equal(t, blockqueue.OK, outcome)
	assert.Equal(t, "queued", v)
}

func TestPopUntilRetriesPastTimedOut(t *testing.T) {
	q := blockqueue.New(1)
	policy := retry.Backoff(5*time.Millisecond, 5*time.Millisecond, 1)

	done := make(chan struct{})
	var got interface{}
	go func() {
		defer close(done)
		v, outcome, err := q.PopUntil(policy)
		require.NoError(t, err)
		require.Equal(t, blockqueue.OK, outcome)
		got = v
	}()

	time.Sleep(20 * time.Millisecond)
	outcome, err := q.Push("late", time.Second)
	require.NoError(t, err)
	require.Equal(t, blockqueue.OK, outcome)
	<-done
	assert.Equal(t, "late", got)
}

func TestPushUntilGivesUpWhenPolicyRefuses(t *testing.T) {
	q := blockqueue.New(1)
	_, err := q.Push("occupied", time.Second)
	require.NoError(t, err)

	policy := retry.MaxRetries(retry.Backoff(time.Millisecond, time.Millisecond, 1), 2)
	outcome, err := q.PushUntil("blocked", policy)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.TimedOut, err))
	assert.Equal(t, blockqueue.TimedOut, outcome)
}

func TestSealDrainsThenCloses(t *testing.T) {
	q := blockqueue.New(2)
	_, _ = q.Push("a", time.Second)
	q.Seal()

	outcome, err := q.Push("b", time.Second)
	require.NoError(t, err)
	assert.Equal(t, blockqueue.Closed, outcome)

	v, outcome, err := q.Pop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, blockqueue.OK, outcome)
	assert.Equal(t, "a", v)

	_, outcome, err = q.Pop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, blockqueue.Closed, outcome)
}

func TestSealIdempotent(t *testing.T) {
	q := blockqueue.New(1)
	q.Seal()
	q.Seal()
	assert.True(t, q.Sealed())
}

func TestConcurrentProducersFIFOPerProducer(t *testing.T) {
	q := blockqueue.New(8)
	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for {
				outcome, err := q.Push(i, 10*time.Millisecond)
				require.NoError(t, err)
				if outcome == blockqueue.OK {
					break
				}
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			v, outcome, err := q.Pop(10 * time.Millisecond)
			require.NoError(t, err)
			if outcome == blockqueue.OK {
				received = append(received, v.(int))
			}
		}
	}()
	wg.Wait()
	for i, v := range received {
		assert.Equal(t, i, v)
	}
}
