// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tempregistry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ncbi-sra/fasterq-go/copymachine"
	"github.com/ncbi-sra/fasterq-go/errors"
)

// FlushOptions controls how FlushToFiles opens each group's
// destination file.
type FlushOptions struct {
	// Force truncates an existing destination instead of failing.
	Force bool
	// Append opens the destination for append instead of truncating
	// or failing; takes precedence over Force.
	Append bool
}

const defaultExt = ".fastq"

// destNameForGroup composes the final path for group g given the
// flush base name: group 0 uses base unchanged; every other group
// splits base at its final "." (not counting any path separator) and
// inserts "_<g>" before the extension, defaulting to ".fastq" when
// base has none.
func destNameForGroup(base string, g int) string {
	if g == 0 {
		return base
	}
	searchFrom := 0
	if sep := strings.LastIndexAny(base, `/\`); sep >= 0 {
		searchFrom = sep + 1
	}
	rel := base[searchFrom:]
	dot := strings.LastIndex(rel, ".")
	if dot < 0 {
		return fmt.Sprintf("%s_%d%s", base, g, defaultExt)
	}
	dot += searchFrom
	return fmt.Sprintf("%s_%d%s", base[:dot], g, base[dot:])
}

func openDest(path string, opts FlushOptions) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case opts.Append:
		flags |= os.O_APPEND
	case opts.Force:
		flags |= os.O_TRUNC
	default:
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0664)
	if err != nil {
		return nil, errors.E(errors.Fatal, "tempregistry: open destination", err)
	}
	return f, nil
}

// FlushToFiles concatenates every registered group into its own
// destination file derived from base (see destNameForGroup), one
// goroutine per non-empty group, and joins before returning. Sources
// are removed as they are consumed, matching copymachine's contract.
// The returned error is the first non-nil error observed across all
// groups.
func (r *Registry) FlushToFiles(base string, opts FlushOptions) (*Progress, error) {
	groups := r.snapshot()
	total, err := totalSize(statSize, groups)
	if err != nil {
		return nil, err
	}
	progress := &Progress{BytesTotal: total}

	ids := sortedGroupIDs(groups)
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	wg.Add(len(ids))
	for i, g := range ids {
		go func(i, g int) {
			defer wg.Done()
			errs[i] = flushGroupToFile(destNameForGroup(base, g), groups[g], opts, progress)
		}(i, g)
	}
	wg.Wait()
	return progress, firstErr(errs)
}

func flushGroupToFile(dest string, paths []string, opts FlushOptions, progress *Progress) error {
	f, err := openDest(dest, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	cp, err := copymachine.Copy(paths, f, copyBlockSize, 0)
	if cp != nil {
		progress.add(cp.BytesDone)
	}
	return err
}

// FlushToStdout streams every registered group's segments to w, one
// group at a time in ascending stream-id order, removing each source
// after its bytes are written.
func (r *Registry) FlushToStdout(w io.Writer) (*Progress, error) {
	groups := r.snapshot()
	total, err := totalSize(statSize, groups)
	if err != nil {
		return nil, err
	}
	progress := &Progress{BytesTotal: total}

	for _, g := range sortedGroupIDs(groups) {
		cp, err := copymachine.Copy(groups[g], w, copyBlockSize, 0)
		if cp != nil {
			progress.add(cp.BytesDone)
		}
		if err != nil {
			return progress, err
		}
	}
	return progress, nil
}

// copyBlockSize is the block size handed to copymachine.Copy by the
// flush protocols; segment concatenation is not latency-sensitive, so
// a larger block than the interactive pipeline default trades a
// little memory for fewer syscalls.
const copyBlockSize = 1 << 20

func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
