// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command fasterq-go is a thin CLI front end over the extraction
// core: it parses flags into a driver.Options and a shard count, then
// hands off to driver.Extractor. Row sourcing (reading an accession's
// spots) is an external collaborator this binary does not implement;
// see driver.RowSource.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ncbi-sra/fasterq-go/driver"
	"github.com/ncbi-sra/fasterq-go/errors"
	"github.com/ncbi-sra/fasterq-go/log"
	"github.com/ncbi-sra/fasterq-go/quit"
	"github.com/ncbi-sra/fasterq-go/tempregistry"
)

var (
	pattern  = flag.String("pattern", "@$ac.$si $sn/$ri\n$RD1\n+\n$QA\n", "defline template, see varfmt's descriptor table")
	outBase  = flag.String("outfile", "", "output base name (required)")
	stdout   = flag.Bool("stdout", false, "write to standard output instead of -outfile")
	bufSize  = flag.Int("bufsize", 1<<20, "per-segment buffer size in bytes")
	waitMs   = flag.Int("wait-ms", 20, "queue retry interval in milliseconds")
	force    = flag.Bool("force", false, "overwrite an existing output file")
	appendTo = flag.Bool("append", false, "append to an existing output file")
	shards   = flag.Int("shards", 1, "number of concurrent extraction shards")
)

func main() {
	log.AddFlags()
	log.SetPrefix("fasterq-go: ")
	quit.InstallSignalHandler()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: fasterq-go -outfile PATH [flags]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *outBase == "" && !*stdout {
		fmt.Fprintln(os.Stderr, "fasterq-go: -outfile or -stdout is required")
		flag.Usage()
		os.Exit(2)
	}
	if *shards < 1 {
		fmt.Fprintln(os.Stderr, "fasterq-go: -shards must be at least 1")
		os.Exit(2)
	}

	if err := run(); err != nil {
		log.Error.Printf("fasterq-go: %v", err)
		if *force && errors.Is(errors.Fatal, err) {
			os.Remove(*outBase)
		}
		os.Exit(1)
	}
}

// newRowSources is the seam an integrator replaces: a real binary
// wires it to the SRA access layer's cursor over an accession's
// spots, split into *shards contiguous row ranges. The core never
// assumes anything about how rows are produced.
var newRowSources = func(n int) ([]driver.RowSource, error) {
	return nil, errors.E(errors.Invalid, "fasterq-go: no row source wired; integrate driver.RowSource")
}

func run() error {
	rowSources, err := newRowSources(*shards)
	if err != nil {
		return err
	}

	opts := driver.Options{
		Pattern: *pattern,
		BufSize: *bufSize,
		Wait:    time.Duration(*waitMs) * time.Millisecond,
		Base:    *outBase,
		Flush: tempregistry.FlushOptions{
			Force:  *force,
			Append: *appendTo,
		},
	}
	ex := driver.NewExtractor(opts, nil)
	if err := ex.Run(rowSources); err != nil {
		return err
	}

	if *stdout {
		_, err := ex.FlushToStdout(os.Stdout)
		return err
	}
	_, err = ex.FlushToFiles()
	return err
}
