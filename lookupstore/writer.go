// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package lookupstore

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/ncbi-sra/fasterq-go/errors"
)

// Writer appends (key, payload) records to a packed-2bit lookup
// store, optionally sampling a subset of keys into an attached
// IndexWriter as it goes.
type Writer struct {
	f     *os.File
	w     *bufio.Writer
	pos   int64
	index *IndexWriter

	hasLast        bool
	lastKey        uint64
	hasLastSampled bool
	lastSampledKey uint64
}

// OpenWriter creates (truncating, mode 0664) the store file at path,
// wrapping it in a bufSize buffered writer. index may be nil, in
// which case no sparse index is produced.
func OpenWriter(path string, bufSize int, index *IndexWriter) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return nil, errors.E(errors.Fatal, "lookupstore: open store", err)
	}
	return &Writer{f: f, w: bufio.NewWriterSize(f, bufSize), index: index}, nil
}

// Write appends an 8-byte big-endian key followed by payload.
// Keys must be non-decreasing across calls. When index is attached,
// a sample (key, record_start) is emitted whenever this is the first
// record or key exceeds the last sampled key by more than the
// index's frequency.
func (w *Writer) Write(key uint64, payload []byte) error {
	if w.hasLast && key < w.lastKey {
		return errors.E(errors.Invalid, "lookupstore: keys must be non-decreasing")
	}
	recordStart := w.pos

	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], key)
	if _, err := w.w.Write(hdr[:]); err != nil {
		return errors.E(errors.Fatal, "lookupstore: write key", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return errors.E(errors.Fatal, "lookupstore: write payload", err)
	}
	w.pos += int64(len(hdr)) + int64(len(payload))

	if w.index != nil {
		w.index.addKey(key)
		if !w.hasLastSampled || key > w.lastSampledKey+w.index.frequency {
			if err := w.index.sampleRecord(sample{key: key, offset: recordStart}); err != nil {
				return err
			}
			w.lastSampledKey = key
			w.hasLastSampled = true
		}
	}

	w.lastKey = key
	w.hasLast = true
	return nil
}

// WriteUnpacked packs bases and writes them under the key composed
// from (spotID, readOrdinal). See MakeKey and packPayload.
func (w *Writer) WriteUnpacked(spotID int64, readOrdinal int, bases []byte) error {
	payload, err := packPayload(bases)
	if err != nil {
		return err
	}
	return w.Write(MakeKey(spotID, readOrdinal), payload)
}

// Close flushes and closes the store file and, if attached, the
// index writer. All three steps run regardless of earlier failures;
// the first error encountered is returned, with any later one
// chained onto it (see errors.CleanUp).
func (w *Writer) Close() (err error) {
	if w.index != nil {
		errors.CleanUp(w.index.Close, &err)
	}
	errors.CleanUp(func() error {
		if ferr := w.w.Flush(); ferr != nil {
			return errors.E(errors.Fatal, "lookupstore: flush store", ferr)
		}
		return nil
	}, &err)
	errors.CleanUp(func() error {
		if ferr := w.f.Close(); ferr != nil {
			return errors.E(errors.Fatal, "lookupstore: close store", ferr)
		}
		return nil
	}, &err)
	return err
}
