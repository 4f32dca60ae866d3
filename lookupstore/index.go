// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package lookupstore

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sort"

	"github.com/biogo/store/interval"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/ncbi-sra/fasterq-go/errors"
)

// bloomPath derives the Bloom-filter sidecar path for an index file.
func bloomPath(indexPath string) string {
	return indexPath + ".bloom"
}

// sample is one (key, record_start) pair written to the sparse
// index. Within a store, samples are strictly increasing in key.
type sample struct {
	key    uint64
	offset int64
}

// IndexWriter writes the sparse index file a Writer samples into as
// it appends store records. The file format is an 8-byte big-endian
// frequency header followed by 16-byte (key, offset) records, each
// big-endian.
type IndexWriter struct {
	f         *os.File
	bw        *bufio.Writer
	zw        *zstd.Encoder
	w         io.Writer
	frequency uint64
	path      string
	bloom     *bloom.BloomFilter
}

// OpenIndexWriter creates (truncating) the index file at path.
// frequency is the minimum key gap between consecutive samples; a
// sample is always taken for the first key written regardless of
// frequency. When compress is true, sample records are zstd-framed.
// When expectedKeys > 0, every key written (not just sampled ones)
// is also added to a Bloom filter persisted alongside the index, so
// a Reader can reject an exact key with zero disk I/O before ever
// consulting the sample table.
func OpenIndexWriter(path string, frequency uint64, compress bool, expectedKeys uint) (*IndexWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return nil, errors.E(errors.Fatal, "lookupstore: open index", err)
	}
	bw := bufio.NewWriter(f)
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], frequency)
	if _, err := bw.Write(hdr[:]); err != nil {
		f.Close()
		return nil, errors.E(errors.Fatal, "lookupstore: write index header", err)
	}

	iw := &IndexWriter{f: f, bw: bw, frequency: frequency, path: path}
	if compress {
		zw, err := zstd.NewWriter(bw)
		if err != nil {
			f.Close()
			return nil, errors.E(errors.Fatal, "lookupstore: open zstd index encoder", err)
		}
		iw.zw = zw
		iw.w = zw
	} else {
		iw.w = bw
	}
	if expectedKeys > 0 {
		iw.bloom = bloom.NewWithEstimates(expectedKeys, 0.01)
	}
	// The first sample is always (1, 0), written here at construction
	// rather than through Writer's frequency-gated sampling so it
	// never advances any writer's last-sampled-key bookkeeping: a
	// reader can always float a query for key >= 1 to at least the
	// start of the store, even before the first real record is
	// sampled.
	if err := iw.sampleRecord(sample{key: 1, offset: 0}); err != nil {
		f.Close()
		return nil, err
	}
	return iw, nil
}

func (iw *IndexWriter) sampleRecord(s sample) error {
	var rec [16]byte
	binary.BigEndian.PutUint64(rec[:8], s.key)
	binary.BigEndian.PutUint64(rec[8:], uint64(s.offset))
	if _, err := iw.w.Write(rec[:]); err != nil {
		return errors.E(errors.Fatal, "lookupstore: write index sample", err)
	}
	return nil
}

// addKey records key in the Bloom filter, if one is attached. Called
// for every record Writer.Write sees, not only sampled keys.
func (iw *IndexWriter) addKey(key uint64) {
	if iw.bloom == nil {
		return
	}
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], key)
	iw.bloom.Add(k[:])
}

// Close flushes and releases the index file, writing the Bloom
// filter sidecar if one was built.
func (iw *IndexWriter) Close() error {
	if iw.zw != nil {
		if err := iw.zw.Close(); err != nil {
			return errors.E(errors.Fatal, "lookupstore: close zstd index encoder", err)
		}
	}
	if err := iw.bw.Flush(); err != nil {
		iw.f.Close()
		return errors.E(errors.Fatal, "lookupstore: flush index", err)
	}
	if err := iw.f.Close(); err != nil {
		return errors.E(errors.Fatal, "lookupstore: close index", err)
	}
	if iw.bloom != nil {
		if err := writeBloomFile(bloomPath(iw.path), iw.bloom); err != nil {
			return err
		}
	}
	return nil
}

func writeBloomFile(path string, f *bloom.BloomFilter) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return errors.E(errors.Fatal, "lookupstore: open bloom sidecar", err)
	}
	defer out.Close()
	if _, err := f.WriteTo(out); err != nil {
		return errors.E(errors.Fatal, "lookupstore: write bloom sidecar", err)
	}
	return nil
}

// readBloomFile loads a Bloom-filter sidecar, returning (nil, nil)
// if the file does not exist: the sidecar is an optional
// accelerator, not part of the store's required state.
func readBloomFile(path string) (*bloom.BloomFilter, error) {
	in, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.E(errors.Fatal, "lookupstore: open bloom sidecar", err)
	}
	defer in.Close()
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(in); err != nil {
		return nil, errors.E(errors.Fatal, "lookupstore: read bloom sidecar", err)
	}
	return f, nil
}

// readIndex loads every sample from the index file at path, along
// with its frequency header. Index files are expected to be small
// relative to the store they describe, so loading them whole avoids
// re-deriving the "fewer than 20 samples: scan; otherwise: seek"
// split the original tool used purely to avoid random-access reads
// against a large file (see DESIGN.md).
func readIndex(path string, compressed bool) (samples []sample, frequency uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.E(errors.Fatal, "lookupstore: open index", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, 0, errors.E(errors.Fatal, "lookupstore: read index header", err)
	}
	frequency = binary.BigEndian.Uint64(hdr[:])

	var r io.Reader = br
	if compressed {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, 0, errors.E(errors.Fatal, "lookupstore: open zstd index decoder", err)
		}
		defer zr.Close()
		r = zr
	}

	var rec [16]byte
	for {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, errors.E(errors.Fatal, "lookupstore: read index sample", err)
		}
		samples = append(samples, sample{
			key:    binary.BigEndian.Uint64(rec[:8]),
			offset: int64(binary.BigEndian.Uint64(rec[8:])),
		})
	}
	return samples, frequency, nil
}

// sampleInterval adapts one sample into biogo/store/interval's
// IntInterface: the half-open key range [this sample's key, the
// next sample's key) maps onto this sample's offset, so Get(point)
// for any key in that range returns exactly the floor sample.
type sampleInterval struct {
	id           uintptr
	s            sample
	start, limit int
}

func (iv sampleInterval) Overlap(b interval.IntRange) bool {
	return iv.limit > b.Start && iv.start < b.End
}
func (iv sampleInterval) ID() uintptr                     { return iv.id }
func (iv sampleInterval) Range() interval.IntRange        { return interval.IntRange{Start: iv.start, End: iv.limit} }
func (iv sampleInterval) String() string                  { return "" }

// sampleTable answers "the sample with the greatest key <= key" in
// O(log n) regardless of sample count, built once from an ordered
// sample list via biogo/store/interval.IntTree.
type sampleTable struct {
	tree    interval.IntTree
	ordered []sample // same order, ascending by both key and offset
	count   int
	minKey  uint64
	maxKey  uint64
}

func newSampleTable(samples []sample) (*sampleTable, error) {
	t := &sampleTable{count: len(samples), ordered: samples}
	if len(samples) == 0 {
		return t, nil
	}
	t.minKey = samples[0].key
	t.maxKey = samples[len(samples)-1].key
	for i, s := range samples {
		start := int(s.key)
		limit := math.MaxInt
		if i+1 < len(samples) {
			limit = int(samples[i+1].key)
		}
		iv := sampleInterval{id: uintptr(i + 1), s: s, start: start, limit: limit}
		if err := t.tree.Insert(iv, false); err != nil {
			return nil, errors.E(errors.Fatal, "lookupstore: build sample index", err)
		}
	}
	return t, nil
}

// floor returns the sample with the greatest key <= key, if any.
func (t *sampleTable) floor(key uint64) (sample, bool) {
	if t.count == 0 || key < t.minKey || key > t.maxKey {
		return sample{}, false
	}
	q := sampleInterval{start: int(key), limit: int(key) + 1}
	matches := t.tree.Get(q)
	if len(matches) == 0 {
		return sample{}, false
	}
	return matches[0].(sampleInterval).s, true
}

// floorByOffset returns the sample with the greatest offset <=
// offset, if any. Samples are appended in store-write order, so they
// are already ascending by offset as well as by key; a plain binary
// search suffices without a second tree.
func (t *sampleTable) floorByOffset(offset int64) (sample, bool) {
	if t.count == 0 || offset < t.ordered[0].offset {
		return sample{}, false
	}
	i := sort.Search(len(t.ordered), func(i int) bool { return t.ordered[i].offset > offset })
	return t.ordered[i-1], true
}
