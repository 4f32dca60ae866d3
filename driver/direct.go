// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package driver

import (
	"fmt"
	"io"

	"github.com/ncbi-sra/fasterq-go/blockpool"
	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/quit"
	"github.com/ncbi-sra/fasterq-go/schema"
	"github.com/ncbi-sra/fasterq-go/varfmt"
)

// SingleWriter runs one RowSource against one blockpool.Pool per read
// ordinal, through a varfmt.PoolSink: every record is rendered and
// appended directly to the ordinal's shared pool, with no temporary
// segment files and no final concatenation pass. This is the shape
// for a single-producer run (§4.2's multi-writer, used as specified
// rather than through the sharded-and-concatenated path Extractor
// implements).
type SingleWriter struct {
	tmpl    *varfmt.Template
	pools   map[int64]*blockpool.Pool
	sinks   map[int64]*varfmt.PoolSink
	buf     *schema.ArgBuffer
	scratch []byte
}

// NewSingleWriter compiles pattern and wires one pool/sink per
// (readOrdinal -> Sink) pair in pools. Every ordinal a RowSource may
// emit must have an entry; an unmapped ordinal fails the run with
// errors.Invalid (see Run).
func NewSingleWriter(pattern string, pools map[int64]*blockpool.Pool) (*SingleWriter, error) {
	tmpl, err := varfmt.Compile(pattern)
	if err != nil {
		return nil, err
	}
	sinks := make(map[int64]*varfmt.PoolSink, len(pools))
	for ordinal, pool := range pools {
		sinks[ordinal] = varfmt.NewPoolSink(pool)
	}
	return &SingleWriter{
		tmpl:    tmpl,
		pools:   pools,
		sinks:   sinks,
		buf:     schema.NewArgBuffer(),
		scratch: make([]byte, tmpl.ScratchSize()),
	}, nil
}

// Run drains rs until io.EOF, rendering and appending each record to
// its read ordinal's pool sink, polling quit.Check between records.
// It does not close the underlying pools: the caller owns their
// lifetime and calls Pool.Close once writing has stopped on every
// ordinal sharing them.
func (s *SingleWriter) Run(rs RowSource) error {
	for {
		if err := quit.Check(); err != nil {
			return err
		}
		rec, err := rs.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		sink, err := s.sinkFor(rec.ReadOrdinal)
		if err != nil {
			return err
		}
		strs, ints := s.buf.Load(rec)
		rendered, err := s.tmpl.Render(s.scratch, strs, ints)
		if err != nil {
			return err
		}
		if err := sink.Write(rendered); err != nil {
			return err
		}
	}
}

// Flush submits every ordinal's currently held block so the pools'
// writer goroutines can drain it without waiting for another record.
func (s *SingleWriter) Flush() error {
	for _, sink := range s.sinks {
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SingleWriter) sinkFor(ordinal int64) (*varfmt.PoolSink, error) {
	sink, ok := s.sinks[ordinal]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("driver: no pool registered for read ordinal %d", ordinal))
	}
	return sink, nil
}
