// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package driver glues the core pipeline packages (blockpool, varfmt,
// tempregistry, and through them blockqueue and copymachine) to an
// external row source, in the two shapes the core
// documents: a sharded run that writes one temporary segment file
// per worker per read ordinal and concatenates them at the end
// (Extractor, grounded on §4.4/§4.5), and a single-producer run that
// writes directly into one shared multi-writer pool per ordinal, with
// no temporary files or final concatenation pass (SingleWriter,
// grounded on §4.2).
package driver

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/quit"
	"github.com/ncbi-sra/fasterq-go/schema"
	"github.com/ncbi-sra/fasterq-go/tempregistry"
	"github.com/ncbi-sra/fasterq-go/varfmt"
)

// Options configures an Extractor run (SingleWriter takes its pattern
// and pools directly). Parsing these from flags is cmd/fasterq-go's
// job; this package only consumes already-resolved values (spec.md §1
// keeps CLI parsing out of core).
type Options struct {
	// Pattern is the defline template compiled by varfmt.
	Pattern string
	// BufSize is the per-file bufio buffer size for FileSink.
	BufSize int
	// Wait is carried for callers; Extractor does not read it, and
	// the flush's copy queues use their own fixed retry interval.
	Wait time.Duration
	// Base is the destination base name (see tempregistry naming
	// rules for the per-stream-group final file names).
	Base string
	Flush tempregistry.FlushOptions
}

// Extractor runs one or more RowSource shards concurrently, each
// rendering into its own temporary per-read-ordinal segment files,
// then concatenates every ordinal's segments into the final output
// (FlushToFiles) or streams them to an io.Writer (FlushToStdout).
type Extractor struct {
	opts     Options
	registry *tempregistry.Registry
}

// NewExtractor constructs an Extractor. cleanup may be nil; it
// receives every temporary path as it is created, for a caller that
// wants to sweep them on a fatal abort independent of the registry's
// own bookkeeping.
func NewExtractor(opts Options, cleanup tempregistry.Cleanup) *Extractor {
	return &Extractor{opts: opts, registry: tempregistry.New(cleanup)}
}

// Run extracts every shard concurrently and returns the first error
// encountered across any of them (errors.Once semantics: first
// non-nil wins). A cancellation requested via quit.Request is
// observed between records and reported as errors.Cancelled.
func (e *Extractor) Run(shards []RowSource) error {
	var wg sync.WaitGroup
	var firstErr errors.Once
	for i, rs := range shards {
		wg.Add(1)
		go func(shardIdx int, rs RowSource) {
			defer wg.Done()
			if err := e.runShard(shardIdx, rs); err != nil {
				firstErr.Set(err)
			}
		}(i, rs)
	}
	wg.Wait()
	return firstErr.Err()
}

func (e *Extractor) runShard(shardIdx int, rs RowSource) error {
	tmpl, err := varfmt.Compile(e.opts.Pattern)
	if err != nil {
		return err
	}
	sinkBase := fmt.Sprintf("%s.shard%d", e.opts.Base, shardIdx)
	sink := varfmt.NewFileSink(sinkBase, e.opts.BufSize, e.registry)
	defer sink.Close()

	buf := schema.NewArgBuffer()
	scratch := make([]byte, tmpl.ScratchSize())
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
		strs, ints := buf.Load(rec)
		rendered, err := tmpl.Render(scratch, strs, ints)
		if err != nil {
			return err
		}
		if _, err := sink.Write(int(rec.ReadOrdinal), rendered); err != nil {
			return err
		}
	}
}

// FlushToFiles concatenates every read ordinal's registered segments
// into the final output files named from Options.Base, per
// tempregistry's naming rules.
func (e *Extractor) FlushToFiles() (*tempregistry.Progress, error) {
	return e.registry.FlushToFiles(e.opts.Base, e.opts.Flush)
}

// FlushToStdout streams every read ordinal's registered segments, in
// ascending ordinal order, to w.
func (e *Extractor) FlushToStdout(w io.Writer) (*tempregistry.Progress, error) {
	return e.registry.FlushToStdout(w)
}
