// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package nucstrstr compiles a small IUPAC pattern grammar into an
// acceptance-set automaton and scans a packed-2bit base window for
// matches, either returning a 1-based match position (positional
// mode) or a boolean match indicator.
package nucstrstr

import (
	"github.com/bits-and-blooms/bitset"
)

// base codes, matching lookupstore's packing: A=0, C=1, G=2, T=3.
const (
	codeA = 0
	codeC = 1
	codeG = 2
	codeT = 3
)

// iupacSet returns the 4-bit acceptance set (one bit per base code)
// for an IUPAC ambiguity code. Unrecognized bytes accept nothing, so
// a literal containing one never matches (caught at compile time
// instead, see compileFasta).
func iupacSet(ch byte) *bitset.BitSet {
	s := bitset.New(4)
	switch ch {
	case 'A', 'a':
		s.Set(codeA)
	case 'C', 'c':
		s.Set(codeC)
	case 'G', 'g':
		s.Set(codeG)
	case 'T', 't', 'U', 'u':
		s.Set(codeT)
	case 'R', 'r':
		s.Set(codeA).Set(codeG)
	case 'Y', 'y':
		s.Set(codeC).Set(codeT)
	case 'S', 's':
		s.Set(codeG).Set(codeC)
	case 'W', 'w':
		s.Set(codeA).Set(codeT)
	case 'K', 'k':
		s.Set(codeG).Set(codeT)
	case 'M', 'm':
		s.Set(codeA).Set(codeC)
	case 'B', 'b':
		s.Set(codeC).Set(codeG).Set(codeT)
	case 'D', 'd':
		s.Set(codeA).Set(codeG).Set(codeT)
	case 'H', 'h':
		s.Set(codeA).Set(codeC).Set(codeT)
	case 'V', 'v':
		s.Set(codeA).Set(codeG).Set(codeC)
	case 'N', 'n':
		s.Set(codeA).Set(codeC).Set(codeG).Set(codeT)
	}
	return s
}

// isIUPACLetter reports whether ch is a recognized IUPAC ambiguity
// code letter.
func isIUPACLetter(ch byte) bool {
	switch ch {
	case 'A', 'a', 'C', 'c', 'G', 'g', 'T', 't', 'U', 'u',
		'R', 'r', 'Y', 'y', 'S', 's', 'W', 'w', 'K', 'k',
		'M', 'm', 'B', 'b', 'D', 'd', 'H', 'h', 'V', 'v',
		'N', 'n':
		return true
	}
	return false
}

// unpackBases decodes count 2-bit base codes from a packed-2na
// window starting at base index start, using the same four-bases-
// per-byte packing lookupstore writes (code0<<6|code1<<4|code2<<2|code3).
func unpackBases(window []byte, start, count int) []byte {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		bitIdx := start + i
		b := window[bitIdx/4]
		shift := uint(6 - 2*(bitIdx%4))
		out[i] = (b >> shift) & 0x3
	}
	return out
}
