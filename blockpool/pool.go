// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockpool

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/ncbi-sra/fasterq-go/blockqueue"
	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/log"
	"github.com/ncbi-sra/fasterq-go/must"
	"github.com/ncbi-sra/fasterq-go/retry"
)

// Sink is the destination a Pool's writer goroutine drains blocks
// into. The writer goroutine calls WriteAt for every block, at the
// pool's running position, for file and stdout sinks alike.
type Sink interface {
	// WriteAt writes p at the given sink position and returns the
	// number of bytes written. Implementations must behave like
	// io.WriterAt: a short write without an error is not permitted.
	WriteAt(pos int64, p []byte) (int, error)
	// Close releases the sink. Called exactly once, from the pool's
	// shutdown protocol.
	Close() error
}

// fileSink wraps a buffered, truncated, mode-0664 file opened by
// Open.
type fileSink struct {
	f *os.File
	w *bufio.Writer
}

func (s *fileSink) WriteAt(pos int64, p []byte) (int, error) {
	// The writer goroutine is the only writer and always advances
	// pos by the accumulated write length, so buffering does not
	// need to seek: sequential bufio.Writer.Write suffices and is
	// far cheaper than os.File.WriteAt for the common case.
	_ = pos
	return s.w.Write(p)
}

func (s *fileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// stdoutSink writes text blocks to the process's standard output.
type stdoutSink struct {
	w io.Writer
}

func (s *stdoutSink) WriteAt(pos int64, p []byte) (int, error) {
	_ = pos
	return s.w.Write(p)
}

func (s *stdoutSink) Close() error { return nil }

// OpenFile creates (mode 0664, truncating) a file sink at path with
// the given bufio buffer size.
func OpenFile(path string, bufSize int) (Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return nil, errors.E(errors.Fatal, "blockpool: open sink", err)
	}
	return &fileSink{f: f, w: bufio.NewWriterSize(f, bufSize)}, nil
}

// OpenStdout wraps w (normally os.Stdout) as a sink.
func OpenStdout(w io.Writer) Sink {
	return &stdoutSink{w: w}
}

// Pool owns N pre-allocated blocks, an empty-queue, a work-queue, a
// sink, and the single writer goroutine that drains work-queue into
// the sink. See package doc for the block lifecycle.
type Pool struct {
	sink     Sink
	empty    *blockqueue.Queue
	work     *blockqueue.Queue
	wait     time.Duration
	policy   retry.Policy
	position int64
	done     chan struct{}
	writeErr errors.Once
}

// Open constructs a Pool: it opens the sink (the caller passes an
// already-OpenFile/OpenStdout Sink), allocates count blocks of
// blockSize bytes into the empty-queue, and launches the writer
// goroutine. wait is the retry interval used for internal queue
// timeouts.
func Open(sink Sink, blockSize, count int, wait time.Duration) (*Pool, error) {
	if count <= 0 || blockSize <= 0 {
		return nil, errors.E(errors.Invalid, "blockpool: count and blockSize must be positive")
	}
	p := &Pool{
		sink:   sink,
		empty:  blockqueue.New(count),
		work:   blockqueue.New(count),
		wait:   wait,
		policy: retry.Backoff(wait, wait, 1),
		done:   make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		if _, err := p.empty.Push(newBlock(blockSize), wait); err != nil {
			return nil, err
		}
	}
	go p.writeLoop()
	return p, nil
}

// Acquire returns a block from the empty-queue, retrying on
// TimedOut per p.policy. It fails with errors.PipelineClosed if the
// empty-queue has been sealed, meaning an earlier write failed and
// the pool is poisoned.
func (p *Pool) Acquire() (*Block, error) {
	v, outcome, err := p.empty.PopUntil(p.policy)
	if err != nil {
		return nil, err
	}
	if outcome == blockqueue.Closed {
		return nil, errors.E(errors.PipelineClosed, "blockpool: writer poisoned the pool")
	}
	b := v.(*Block)
	// Every block in the empty-queue was Reset by the writer before
	// being pushed back; a nonzero Length here means the pool's
	// accounting has desynced (e.g. a caller mutated a block it no
	// longer holds) rather than anything a caller could have passed
	// in wrong, so this is a must, not an errors.Invalid.
	must.True(b.Length == 0, "blockpool: pool accounting underflow, acquired block has non-zero length")
	return b, nil
}

// Append appends payload to b. See Block.Append for the strict-"<"
// headroom contract.
func (p *Pool) Append(b *Block, payload []byte) bool {
	return b.Append(payload)
}

// Expand grows b's underlying buffer to size bytes. Legal only on a
// freshly acquired block.
func (p *Pool) Expand(b *Block, size int) error {
	if size <= cap(b.Data) {
		return errors.E(errors.Invalid, "blockpool: expand size not larger than capacity")
	}
	b.Expand(size)
	return nil
}

// Submit hands b to the work-queue, retrying indefinitely on
// TimedOut per p.policy.
func (p *Pool) Submit(b *Block) error {
	outcome, err := p.work.PushUntil(b, p.policy)
	if err != nil {
		return err
	}
	if outcome == blockqueue.Closed {
		return errors.E(errors.PipelineClosed, "blockpool: work-queue sealed")
	}
	return nil
}

// Position returns the sink position: the sum of successful write
// lengths so far.
func (p *Pool) Position() int64 {
	return p.position
}

func (p *Pool) writeLoop() {
	defer close(p.done)
	for {
		v, outcome, err := p.work.PopUntil(p.policy)
		if err != nil {
			p.writeErr.Set(err)
			p.poison()
			return
		}
		if outcome == blockqueue.Closed {
			return
		}
		b := v.(*Block)
		if b.Length > 0 {
			n, err := p.sink.WriteAt(p.position, b.Bytes())
			p.position += int64(n)
			if err != nil {
				log.Error.Printf("blockpool: write failed at position %d: %v", p.position, err)
				b.Reset()
				_, _ = p.empty.Push(b, p.wait)
				p.writeErr.Set(errors.E(errors.SpaceExhausted, "blockpool: sink write failed", err))
				p.poison()
				return
			}
		}
		b.Reset()
		if _, err := p.empty.PushUntil(b, p.policy); err != nil {
			p.writeErr.Set(err)
			p.poison()
			return
		}
	}
}

// poison seals the empty-queue so blocked/future Acquire calls
// observe PipelineClosed rather than silently making progress after
// a write failure.
func (p *Pool) poison() {
	p.empty.Seal()
}

// Close runs the shutdown protocol: seal work-queue, join the writer,
// drain both queues, and release the sink. After Close returns, no
// block is leaked and the sink is either complete or poisoned. The
// first non-nil error observed by the writer (if any) is returned.
func (p *Pool) Close() error {
	p.work.Seal()
	<-p.done
	p.drain(p.empty)
	p.drain(p.work)
	if err := p.sink.Close(); err != nil {
		p.writeErr.Set(err)
	}
	return p.writeErr.Err()
}

func (p *Pool) drain(q *blockqueue.Queue) {
	q.Seal()
	for {
		_, outcome, _ := q.Pop(time.Millisecond)
		if outcome == blockqueue.Closed {
			return
		}
	}
}
