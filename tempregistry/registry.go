// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package tempregistry tracks the temporary per-stream segment files
// that varfmt's FileSink creates, grouped by stream id, and
// concatenates each group's segments into one final file (or streams
// them to standard output) at flush time, one goroutine per group.
package tempregistry

import (
	"sort"
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/ncbi-sra/fasterq-go/errors"
)

// Cleanup is announced every path Register sees, so a caller tracking
// all temporary files for eventual removal on a fatal abort doesn't
// need to duplicate the registry's own bookkeeping.
type Cleanup interface {
	Announce(path string)
}

// Registry groups registered segment paths by stream id under a
// single mutex.
type Registry struct {
	mu      sync.Mutex
	groups  map[int][]string
	cleanup Cleanup
}

// New constructs an empty Registry. cleanup may be nil.
func New(cleanup Cleanup) *Registry {
	return &Registry{groups: make(map[int][]string), cleanup: cleanup}
}

// Register records path as the newest segment for streamID and
// announces it to the cleanup collaborator, if any.
func (r *Registry) Register(streamID int, path string) {
	r.mu.Lock()
	r.groups[streamID] = append(r.groups[streamID], path)
	r.mu.Unlock()
	if r.cleanup != nil {
		r.cleanup.Announce(path)
	}
}

// snapshot returns a defensive copy of the registered groups, with
// each group's paths sorted ascending so concatenation order is
// reproducible.
func (r *Registry) snapshot() map[int][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int][]string, len(r.groups))
	for id, paths := range r.groups {
		cp := append([]string(nil), paths...)
		sort.Strings(cp)
		out[id] = cp
	}
	return out
}

// sortedGroupIDs returns the keys of groups in ascending order, so
// multi-group operations have a deterministic iteration order even
// though the protocol does not promise anything about ordering
// across stream ids.
func sortedGroupIDs(groups map[int][]string) []int {
	ids := make([]int, 0, len(groups))
	for id, paths := range groups {
		if len(paths) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Progress reports bytes copied across every group flushed so far,
// safe for concurrent updates from one goroutine per group.
type Progress struct {
	BytesTotal int64
	bytesDone  atomix.Int64
}

// Done returns the number of bytes copied so far.
func (p *Progress) Done() int64 {
	return p.bytesDone.Load()
}

func (p *Progress) add(n int64) {
	p.bytesDone.Add(n)
}

func firstErr(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func totalSize(statSize func(path string) (int64, error), groups map[int][]string) (int64, error) {
	var total int64
	for _, paths := range groups {
		for _, p := range paths {
			sz, err := statSize(p)
			if err != nil {
				return 0, errors.E(errors.Fatal, "tempregistry: stat segment", err)
			}
			total += sz
		}
	}
	return total, nil
}
