// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package varfmt

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/ncbi-sra/fasterq-go/blockpool"
	"github.com/ncbi-sra/fasterq-go/errors"
)

// Registrar receives the path of every file a FileSink creates, so a
// temporary-segment registry can group and later concatenate them.
// Defined at the point of use rather than imported from a concrete
// registry package, so varfmt does not depend on how paths are
// flushed.
type Registrar interface {
	Register(streamID int, path string)
}

type streamFile struct {
	f   *os.File
	w   *bufio.Writer
	pos int64
}

// FileSink is the file-per-stream render sink: the first Write for a
// given stream id lazily creates "<base>.<id>", wraps it in a
// buffered writer, and announces the path to the registrar.
type FileSink struct {
	mu        sync.Mutex
	base      string
	bufSize   int
	registrar Registrar
	files     map[int]*streamFile
}

// NewFileSink constructs a FileSink. bufSize is the per-file bufio
// buffer size; registrar may be nil if path tracking is not needed.
func NewFileSink(base string, bufSize int, registrar Registrar) *FileSink {
	return &FileSink{
		base:      base,
		bufSize:   bufSize,
		registrar: registrar,
		files:     make(map[int]*streamFile),
	}
}

// Write appends p to the file for streamID, creating it on first
// use, and returns the file position p was written at.
func (s *FileSink) Write(streamID int, p []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, ok := s.files[streamID]
	if !ok {
		path := fmt.Sprintf("%s.%d", s.base, streamID)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
		if err != nil {
			return 0, errors.E(errors.Fatal, "varfmt: open stream file", err)
		}
		sf = &streamFile{f: f, w: bufio.NewWriterSize(f, s.bufSize)}
		s.files[streamID] = sf
		if s.registrar != nil {
			s.registrar.Register(streamID, path)
		}
	}

	pos := sf.pos
	n, err := sf.w.Write(p)
	sf.pos += int64(n)
	if err != nil {
		return pos, errors.E(errors.Fatal, "varfmt: write stream file", err)
	}
	return pos, nil
}

// Close flushes and closes every stream file opened so far.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, sf := range s.files {
		if err := sf.w.Flush(); err != nil && first == nil {
			first = err
		}
		if err := sf.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return errors.E(errors.Fatal, "varfmt: closing stream files", first)
	}
	return nil
}

// PoolSink is the shared multi-writer render sink: rendered records
// are appended to a currently held blockpool.Block; when the block
// has no room, it is submitted and a fresh one acquired. A record
// that does not fit even a freshly acquired, default-sized block
// causes that block to be expanded to record_length+1 and the append
// retried exactly once.
type PoolSink struct {
	mu      sync.Mutex
	pool    *blockpool.Pool
	current *blockpool.Block
}

// NewPoolSink wraps pool as a render sink.
func NewPoolSink(pool *blockpool.Pool) *PoolSink {
	return &PoolSink{pool: pool}
}

// Write appends p to the pool's current block, rotating or
// expanding blocks as needed. It fails with errors.PipelineClosed if
// the pool's writer has poisoned the empty-queue.
func (s *PoolSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		b, err := s.pool.Acquire()
		if err != nil {
			return err
		}
		s.current = b
	}
	if s.pool.Append(s.current, p) {
		return nil
	}

	if err := s.pool.Submit(s.current); err != nil {
		s.current = nil
		return err
	}
	b, err := s.pool.Acquire()
	if err != nil {
		s.current = nil
		return err
	}
	s.current = b
	if s.pool.Append(s.current, p) {
		return nil
	}

	if err := s.pool.Expand(s.current, len(p)+1); err != nil {
		return errors.E(errors.Fatal, "varfmt: record exceeds block capacity", err)
	}
	if !s.pool.Append(s.current, p) {
		return errors.E(errors.Fatal, "varfmt: record exceeds expanded block capacity")
	}
	return nil
}

// Flush submits the currently held block, if any, so the writer
// goroutine can drain it without waiting for another Write.
func (s *PoolSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	b := s.current
	s.current = nil
	return s.pool.Submit(b)
}
