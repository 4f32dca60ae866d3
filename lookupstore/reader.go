// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package lookupstore

import (
	"encoding/binary"
	"os"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/ncbi-sra/fasterq-go/errors"
)

// Reader answers nearest-sample queries against a store written by
// Writer and its attached IndexWriter. It does not read store
// records itself: NearestOffset hands back the offset a caller
// should seek the store file to, and the caller resumes sequential
// scanning from there (the sparse index is a fast-forward, not a
// full random-access key/value lookup).
type Reader struct {
	f         *os.File
	size      int64
	frequency uint64
	samples   *sampleTable
	bloom     *bloom.BloomFilter // nil if the writer built no sidecar
}

// OpenReader opens the store file at path for size/positioning
// queries and loads the sparse index at path+".idx" (uncompressed).
// Use OpenReaderWithIndex to point at a differently-named or
// compressed index file.
func OpenReader(path string, bufSize int) (*Reader, error) {
	return OpenReaderWithIndex(path, bufSize, path+".idx", false)
}

// OpenReaderWithIndex is OpenReader with an explicit index path and
// compression flag.
func OpenReaderWithIndex(path string, bufSize int, indexPath string, compressed bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.Fatal, "lookupstore: open store", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.E(errors.Fatal, "lookupstore: stat store", err)
	}

	samples, frequency, err := readIndex(indexPath, compressed)
	if err != nil {
		f.Close()
		return nil, err
	}
	table, err := newSampleTable(samples)
	if err != nil {
		f.Close()
		return nil, err
	}
	bf, err := readBloomFile(bloomPath(indexPath))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{f: f, size: fi.Size(), frequency: frequency, samples: table, bloom: bf}, nil
}

// MayContain reports whether key could have been written to the
// store. A false result is certain (the key was never written); a
// true result means the key may or may not be present. Always
// returns true if the writer built no Bloom sidecar.
func (r *Reader) MayContain(key uint64) bool {
	if r.bloom == nil {
		return true
	}
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], key)
	return r.bloom.Test(k[:])
}

// NearestOffset returns (foundKey, offset) such that foundKey is the
// greatest sampled key <= key, and offset is the store byte position
// of the record at foundKey. It fails with errors.NoSuchKey when key
// is outside the sampled range (above the maximum sampled key, or
// below the minimum).
func (r *Reader) NearestOffset(key uint64) (uint64, int64, error) {
	s, ok := r.samples.floor(key)
	if !ok {
		return 0, 0, errors.E(errors.NoSuchKey, "lookupstore: no sample at or before key")
	}
	return s.key, s.offset, nil
}

// KeyAtOrBefore is the offset->key symmetric counterpart of
// NearestOffset: it returns the greatest sampled key whose record
// starts at or before offset.
func (r *Reader) KeyAtOrBefore(offset int64) (uint64, error) {
	s, ok := r.samples.floorByOffset(offset)
	if !ok {
		return 0, errors.E(errors.NoSuchKey, "lookupstore: no sample at or before offset")
	}
	return s.key, nil
}

// Size returns the store file's size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// ReadAt reads len(p) bytes from the store file starting at off,
// for a caller resuming sequential record scanning from a sample
// offset returned by NearestOffset.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(p, off)
	if err != nil {
		return n, errors.E(errors.Fatal, "lookupstore: read store", err)
	}
	return n, nil
}

// Close releases the store file.
func (r *Reader) Close() error {
	return r.f.Close()
}
