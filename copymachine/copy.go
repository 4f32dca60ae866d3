// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package copymachine concatenates an ordered list of source files
// into a single destination, using a dedicated writer goroutine and
// a small ring of blocks so the reader (foreground) never blocks on
// the destination's I/O directly. Each source is removed after it
// has been copied successfully.
package copymachine

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/ncbi-sra/fasterq-go/blockqueue"
	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/retry"
)

// DefaultRingSize is the number of blocks used when ringSize <= 0 is
// passed to Copy. The original tool uses a 4-block ring
// unconditionally; callers may override it, but MUST default to 4 to
// preserve the observed throughput/latency profile (spec open
// question (b)).
const DefaultRingSize = 4

// Progress reports bytes copied so far, for an external progress
// bar to poll.
type Progress struct {
	BytesDone int64
}

type ringBlock struct {
	data []byte
	n    int
}

// Copy concatenates sources, in order, into dest. Each source file is
// read start-to-end exactly once and removed on successful
// completion; dest is written strictly in the order blocks are
// delivered on the work-queue. blockSize is the size of each ring
// block; ringSize <= 0 means DefaultRingSize.
//
// A write failure on dest seals the empty-queue, so the reader's
// next acquire observes Closed and Copy reports
// errors.SpaceExhausted. A read failure on any source is fatal and
// aborts the whole copy.
func Copy(sources []string, dest io.Writer, blockSize, ringSize int) (*Progress, error) {
	if blockSize <= 0 {
		return nil, errors.E(errors.Invalid, "copymachine: blockSize must be positive")
	}
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	const wait = 20 * time.Millisecond
	policy := retry.Backoff(wait, wait, 1)

	empty := blockqueue.New(ringSize)
	work := blockqueue.New(ringSize)
	for i := 0; i < ringSize; i++ {
		if _, err := empty.Push(&ringBlock{data: make([]byte, blockSize)}, wait); err != nil {
			return nil, err
		}
	}

	progress := &Progress{}
	var writeErr errors.Once
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			v, outcome, err := work.PopUntil(policy)
			if err != nil {
				writeErr.Set(err)
				empty.Seal()
				return
			}
			if outcome == blockqueue.Closed {
				return
			}
			b := v.(*ringBlock)
			if b.n > 0 {
				if _, err := dest.Write(b.data[:b.n]); err != nil {
					writeErr.Set(errors.E(errors.SpaceExhausted, "copymachine: destination write failed", err))
					empty.Seal()
					return
				}
				progress.BytesDone += int64(b.n)
			}
			b.n = 0
			if _, err := empty.PushUntil(b, policy); err != nil {
				writeErr.Set(err)
				empty.Seal()
				return
			}
		}
	}()

	readErr := copySourcesInOrder(sources, empty, work, policy)
	work.Seal()
	<-done

	if readErr != nil {
		return progress, readErr
	}
	if err := writeErr.Err(); err != nil {
		return progress, errors.E(errors.SpaceExhausted, "copymachine: space exhausted", err)
	}
	return progress, nil
}

func copySourcesInOrder(sources []string, empty, work *blockqueue.Queue, policy retry.Policy) error {
	for _, src := range sources {
		if err := copyOneSource(src, empty, work, policy); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return errors.E(errors.Fatal, "copymachine: removing source", err)
		}
	}
	return nil
}

func copyOneSource(src string, empty, work *blockqueue.Queue, policy retry.Policy) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.E(errors.Fatal, "copymachine: open source", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	for {
		b, err := acquire(empty, policy)
		if err != nil {
			return err
		}
		n, readErr := io.ReadFull(r, b.data)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return errors.E(errors.Fatal, "copymachine: read source", readErr)
		}
		b.n = n
		if n > 0 {
			if err := submit(work, b, policy); err != nil {
				return err
			}
		} else {
			if _, err := empty.PushUntil(b, policy); err != nil {
				return err
			}
		}
		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			return nil
		}
	}
}

func acquire(empty *blockqueue.Queue, policy retry.Policy) (*ringBlock, error) {
	v, outcome, err := empty.PopUntil(policy)
	if err != nil {
		return nil, err
	}
	if outcome == blockqueue.Closed {
		return nil, errors.E(errors.SpaceExhausted, "copymachine: destination write failed, pipeline closed")
	}
	return v.(*ringBlock), nil
}

func submit(work *blockqueue.Queue, b *ringBlock, policy retry.Policy) error {
	outcome, err := work.PushUntil(b, policy)
	if err != nil {
		return err
	}
	if outcome == blockqueue.Closed {
		return errors.E(errors.SpaceExhausted, "copymachine: work-queue sealed")
	}
	return nil
}
