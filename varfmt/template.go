// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package varfmt compiles a defline-style pattern such as
// "@$ac.$si/$sn" into a reusable Template that renders records into a
// growable scratch buffer without per-record allocation of the
// template itself. Callers supply a string-argument vector and an
// int-argument vector per Render call; which vector slots a compiled
// element reads is fixed at Compile time.
package varfmt

import (
	"sort"
	"strconv"

	"github.com/ncbi-sra/fasterq-go/errors"
)

type slotKind int

const (
	kindLiteral slotKind = iota
	kindString
	kindInt
)

// element is one compiled piece of a Template: either a run of
// literal bytes, a string slot (with an optional integer fallback
// slot used when the string argument is empty), or an integer slot.
type element struct {
	kind        slotKind
	literal     []byte
	idx         int
	fallbackIdx int
	hasFallback bool
}

// descriptor names a recognized "$xx" token and where it reads from
// the caller's argument vectors. The exact name/kind/index table
// below is fixed: string slots 0..5 are accession, spot name, spot
// group, read 1, read 2, quality; integer slots 0..2 are spot id,
// read ordinal, read length.
type descriptor struct {
	name        string
	kind        slotKind
	idx         int
	fallbackIdx int
	hasFallback bool
}

var descriptors = []descriptor{
	{name: "$ac", kind: kindString, idx: 0},
	{name: "$sn", kind: kindString, idx: 1, fallbackIdx: 0, hasFallback: true},
	{name: "$sg", kind: kindString, idx: 2},
	{name: "$RD1", kind: kindString, idx: 3},
	{name: "$RD2", kind: kindString, idx: 4},
	{name: "$QA", kind: kindString, idx: 5},
	{name: "$si", kind: kindInt, idx: 0},
	{name: "$ri", kind: kindInt, idx: 1},
	{name: "$rl", kind: kindInt, idx: 2},
}

// descriptorsByLength is descriptors sorted longest-name-first, so
// that Compile's suffix scan prefers the longer match (e.g. "$RD1"
// over a hypothetical shorter token sharing its tail).
var descriptorsByLength = func() []descriptor {
	d := append([]descriptor(nil), descriptors...)
	sort.SliceStable(d, func(i, j int) bool { return len(d[i].name) > len(d[j].name) })
	return d
}()

// intSlotWidth is the upper bound, in bytes, reserved per integer
// slot when computing a Template's fixed length; a string slot's
// integer fallback reserves nothing. Decimal width is never fixed at render
// time; this is only a pre-allocation bound.
const intSlotWidth = 20

// Template is a compiled, immutable element sequence plus its
// pre-computed fixed length. A Template is safe for concurrent
// Render calls as long as each call supplies its own scratch buffer.
type Template struct {
	elements []element
	fixedLen int
}

// Compile parses pattern once into a Template. Token scanning finds,
// at each position, the longest suffix of the text scanned so far
// that matches a descriptor name; everything before the match is
// emitted as a literal element, and the match becomes a slot
// element. Any trailing literal after the last match is emitted at
// the end.
func Compile(pattern string) (*Template, error) {
	var elems []element
	scanStart := 0
	for i := 0; i < len(pattern); i++ {
		for _, d := range descriptorsByLength {
			l := len(d.name)
			if i+1 < l {
				continue
			}
			if pattern[i+1-l:i+1] != d.name {
				continue
			}
			if p := i + 1 - l; p > scanStart {
				elems = append(elems, element{kind: kindLiteral, literal: []byte(pattern[scanStart:p])})
			}
			elems = append(elems, element{
				kind:        d.kind,
				idx:         d.idx,
				fallbackIdx: d.fallbackIdx,
				hasFallback: d.hasFallback,
			})
			scanStart = i + 1
			break
		}
	}
	if scanStart < len(pattern) {
		elems = append(elems, element{kind: kindLiteral, literal: []byte(pattern[scanStart:])})
	}

	fixedLen := 0
	for _, e := range elems {
		switch e.kind {
		case kindLiteral:
			fixedLen += len(e.literal)
		case kindInt:
			fixedLen += intSlotWidth
		}
	}
	return &Template{elements: elems, fixedLen: fixedLen}, nil
}

// ScratchSize returns the scratch buffer capacity a caller should
// pre-allocate for this template: four times the fixed length, per
// the compiled-template invariant.
func (t *Template) ScratchSize() int {
	return 4 * t.fixedLen
}

// requiredLen is the fixed length plus the length of every string
// argument actually referenced (string slots contribute 0 to
// fixedLen; their contribution is data-dependent).
func (t *Template) requiredLen(strs [][]byte) int {
	total := t.fixedLen
	for _, e := range t.elements {
		if e.kind != kindString {
			continue
		}
		if e.idx < len(strs) && len(strs[e.idx]) > 0 {
			total += len(strs[e.idx])
		}
	}
	return total
}

// Render appends the rendered record to scratch[:0] (reusing its
// storage when large enough, growing it otherwise) and returns the
// rendered bytes. strs and ints are the caller's string- and
// integer-argument vectors for this record; slot indices compiled
// into the Template index into them directly.
func (t *Template) Render(scratch []byte, strs [][]byte, ints []int64) ([]byte, error) {
	required := t.requiredLen(strs)
	buf := scratch[:0]
	if cap(buf) < required {
		buf = make([]byte, 0, required)
	}
	for _, e := range t.elements {
		switch e.kind {
		case kindLiteral:
			buf = append(buf, e.literal...)
		case kindString:
			var err error
			buf, err = appendStringSlot(buf, e, strs, ints)
			if err != nil {
				return nil, err
			}
		case kindInt:
			v, err := intArg(ints, e.idx)
			if err != nil {
				return nil, err
			}
			buf = strconv.AppendInt(buf, v, 10)
		}
	}
	return buf, nil
}

func appendStringSlot(buf []byte, e element, strs [][]byte, ints []int64) ([]byte, error) {
	var s []byte
	if e.idx < len(strs) {
		s = strs[e.idx]
	}
	if len(s) == 0 && e.hasFallback {
		v, err := intArg(ints, e.fallbackIdx)
		if err != nil {
			return buf, err
		}
		return strconv.AppendInt(buf, v, 10), nil
	}
	return append(buf, s...), nil
}

func intArg(ints []int64, idx int) (int64, error) {
	if idx < 0 || idx >= len(ints) {
		return 0, errors.E(errors.Invalid, "varfmt: integer slot index out of range")
	}
	return ints[idx], nil
}
