// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package schema defines the extraction driver's row type and its
// mapping onto varfmt's positional string/int argument vectors. The
// original tool resolved string-named cursor columns to integer
// indices at table-open time; here the mapping is a compile-time
// constant (it mirrors varfmt's own fixed descriptor table) and the
// driver builds a Record per row rather than touching column indices
// itself. Package core (blockqueue, blockpool, copymachine, varfmt,
// tempregistry, lookupstore, nucstrstr) never imports this package:
// the core renders whatever string/int vectors it is handed, and
// does not know what a Record is.
package schema

// Record is one spot-read's worth of fields, named after the
// defline tokens they feed (see varfmt's descriptor table). Quality
// is carried as opaque bytes, not a string: no phred-offset
// interpretation (raw vs. +33 ASCII) happens here, or anywhere below
// the driver — the encoding choice belongs to whoever populates this
// field.
type Record struct {
	Accession string
	SpotName  string
	SpotGroup string
	Read1     string
	Read2     string
	Quality   []byte

	SpotID      int64
	ReadOrdinal int64
	ReadLength  int64
}

// ArgBuffer holds the string/int argument vectors varfmt.Render
// expects, reused record-to-record so a driver's hot loop does not
// allocate a fresh pair of slices per row.
type ArgBuffer struct {
	strs   [6][]byte
	strVec [][]byte
	ints   [3]int64
}

// NewArgBuffer returns a ready-to-use ArgBuffer.
func NewArgBuffer() *ArgBuffer {
	b := &ArgBuffer{}
	b.strVec = make([][]byte, 6)
	return b
}

// Load copies r's fields into b's vectors, in the fixed positional
// order varfmt's descriptor table expects: strings
// [accession, spot name, spot group, read1, read2, quality], ints
// [spot id, read ordinal, read length]. Returns the vectors for
// direct use as Template.Render's strs/ints arguments.
func (b *ArgBuffer) Load(r *Record) (strs [][]byte, ints []int64) {
	b.strs[0] = append(b.strs[0][:0], r.Accession...)
	b.strs[1] = append(b.strs[1][:0], r.SpotName...)
	b.strs[2] = append(b.strs[2][:0], r.SpotGroup...)
	b.strs[3] = append(b.strs[3][:0], r.Read1...)
	b.strs[4] = append(b.strs[4][:0], r.Read2...)
	b.strs[5] = append(b.strs[5][:0], r.Quality...)
	for i := range b.strs {
		b.strVec[i] = b.strs[i]
	}

	b.ints[0] = r.SpotID
	b.ints[1] = r.ReadOrdinal
	b.ints[2] = r.ReadLength

	return b.strVec, b.ints[:]
}
