// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package lookupstore implements a packed-2bit base store keyed by
// spot id and read ordinal, with a companion sparse index that lets
// a reader find the record at or immediately before a requested key
// without scanning the whole store.
package lookupstore

import (
	"github.com/ncbi-sra/fasterq-go/errors"
)

// maxBaseCount is one more than the largest base count the 2-byte
// length prefix can represent; bases lengths at or above it are
// over-length.
const maxBaseCount = 1 << 16

// baseCode maps an ASCII base byte to its 2-bit code. Any byte not
// explicitly mapped (including 'N'/'n' and anything else) codes as
// 0, matching the packer's permissive undefined-behavior policy.
var baseCode [256]byte

func init() {
	baseCode['A'], baseCode['a'] = 0, 0
	baseCode['C'], baseCode['c'] = 1, 1
	baseCode['G'], baseCode['g'] = 2, 2
	baseCode['T'], baseCode['t'] = 3, 3
}

// packBases packs bases four-to-a-byte as code0<<6|code1<<4|code2<<2|code3,
// filling the missing low-order positions of a trailing partial group
// with zero codes.
func packBases(bases []byte) []byte {
	n := len(bases)
	out := make([]byte, (n+3)/4)
	for i := 0; i < n; i += 4 {
		var b byte
		for j := 0; j < 4; j++ {
			var code byte
			if i+j < n {
				code = baseCode[bases[i+j]]
			}
			b |= code << uint(6-2*j)
		}
		out[i/4] = b
	}
	return out
}

// MakeKey composes the store key for (spotID, readOrdinal): spotID
// shifted left one bit, with bit 0 set when readOrdinal is the
// second read of a pair.
func MakeKey(spotID int64, readOrdinal int) uint64 {
	key := uint64(spotID) << 1
	if readOrdinal == 2 {
		key |= 1
	}
	return key
}

// packPayload validates bases and produces the "write_unpacked"
// wire payload: a big-endian 2-byte base count followed by the
// packed 2-bit bases.
func packPayload(bases []byte) ([]byte, error) {
	n := len(bases)
	if n == 0 {
		return nil, errors.E(errors.Invalid, "lookupstore: bases must not be empty")
	}
	if n >= maxBaseCount {
		return nil, errors.E(errors.OverLength, "lookupstore: bases exceed maximum length")
	}
	packed := packBases(bases)
	payload := make([]byte, 2+len(packed))
	payload[0] = byte(n >> 8)
	payload[1] = byte(n)
	copy(payload[2:], packed)
	return payload, nil
}
