// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package blockpool implements a bounded reservoir of fixed-capacity
// byte blocks that are routed through two blockqueue.Queues between
// many producer goroutines and a single writer goroutine:
//
//	empty-queue --(producer fills)--> work-queue --(writer drains)--> empty-queue
//
// The pool is the sole allocator of block memory: blocks are created
// once at construction and never freed until the pool is closed.
package blockpool

// Block is a fixed-capacity byte buffer with a mutable valid length.
// Invariant: 0 <= Length <= cap(Data). A Block is exclusively held by
// the pool, or loaned to exactly one goroutine at a time (a producer
// while it is being filled, or the writer while it is being
// drained).
type Block struct {
	Data   []byte
	Length int
}

func newBlock(size int) *Block {
	return &Block{Data: make([]byte, size)}
}

// Reset clears the block's valid length without touching its
// underlying storage. Called by the writer before a drained block is
// returned to the empty-queue.
func (b *Block) Reset() {
	b.Length = 0
}

// Bytes returns the block's valid prefix, Data[:Length].
func (b *Block) Bytes() []byte {
	return b.Data[:b.Length]
}

// Append appends payload to the block if doing so would leave at
// least one byte of headroom (Length+len(payload) < cap(Data)). It
// reports whether the append succeeded. The strict "<" (rather than
// "<=") is intentional and must not be relaxed: it matches the
// original tool's sbuffer accounting and avoids an off-by-one
// regression in multi-writer flush sizing.
func (b *Block) Append(payload []byte) bool {
	if b.Length+len(payload) >= cap(b.Data) {
		return false
	}
	n := copy(b.Data[b.Length:cap(b.Data)], payload)
	b.Length += n
	return true
}

// Expand reallocates the block's underlying buffer to size bytes if
// size exceeds the current capacity. Prior contents are discarded:
// Expand is legal only on a freshly acquired block that does not yet
// hold bytes the caller intends to keep.
func (b *Block) Expand(size int) {
	if size <= cap(b.Data) {
		return
	}
	b.Data = make([]byte, size)
	b.Length = 0
}
