// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package nucstrstr

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/ncbi-sra/fasterq-go/errors"
)

// node is a compiled query fragment. eval reports whether it matches
// within unpacked[0:count] and, for literal fragments, the 1-based
// position of the (first) match.
type node interface {
	eval(unpacked []byte, count int) (matched bool, pos int)
}

// literalNode matches a fixed-length run of IUPAC acceptance sets,
// optionally anchored to the buffer start or end.
type literalNode struct {
	sets        []*bitset.BitSet
	anchorStart bool
	anchorEnd   bool
}

func (l *literalNode) eval(unpacked []byte, count int) (bool, int) {
	n := len(l.sets)
	if n > count {
		return false, 0
	}
	try := func(p int) bool {
		for i, set := range l.sets {
			if !set.Test(uint(unpacked[p+i])) {
				return false
			}
		}
		return true
	}
	switch {
	case l.anchorStart:
		if try(0) {
			return true, 1
		}
		return false, 0
	case l.anchorEnd:
		p := count - n
		if try(p) {
			return true, p + 1
		}
		return false, 0
	default:
		for p := 0; p+n <= count; p++ {
			if try(p) {
				return true, p + 1
			}
		}
		return false, 0
	}
}

type notNode struct {
	child node
}

func (n *notNode) eval(unpacked []byte, count int) (bool, int) {
	matched, _ := n.child.eval(unpacked, count)
	return !matched, 0
}

type boolNode struct {
	and         bool // true for '&'/'&&', false for '|'/'||'
	left, right node
}

func (b *boolNode) eval(unpacked []byte, count int) (bool, int) {
	lm, lp := b.left.eval(unpacked, count)
	rm, rp := b.right.eval(unpacked, count)
	var matched bool
	if b.and {
		matched = lm && rm
	} else {
		matched = lm || rm
	}
	if !matched {
		return false, 0
	}
	// Mixing a position-returning operand with a boolean combinator
	// reports the leftmost operand's position when available,
	// per the "mixed positional/boolean" compile-time flag defaulting
	// to allowed (see DESIGN.md).
	if lm && lp > 0 {
		return true, lp
	}
	return true, rp
}

// Handle is a compiled query, ready for repeated Search calls.
type Handle struct {
	root       node
	positional bool
}

// Compile parses expr against the fixed grammar (see package doc)
// and returns a Handle. positional selects what Search returns on a
// match: a 1-based base position when true, a non-zero boolean
// indicator when false.
func Compile(expr string, positional bool) (*Handle, error) {
	p := &parser{src: expr}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, errors.E(errors.InvalidQuery, "nucstrstr: unexpected trailing input")
	}
	return &Handle{root: root, positional: positional}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) consume(ch byte) bool {
	if p.peek() == ch {
		p.pos++
		return true
	}
	return false
}

// parseExpr implements expr := unary ( boolean_op expr )?
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	and, ok, err := p.parseBooleanOp()
	if err != nil {
		return nil, err
	}
	if !ok {
		return left, nil
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &boolNode{and: and, left: left, right: right}, nil
}

func (p *parser) parseBooleanOp() (and bool, ok bool, err error) {
	switch p.peek() {
	case '&':
		p.pos++
		if p.pos < len(p.src) && p.src[p.pos] == '&' {
			p.pos++
		}
		return true, true, nil
	case '|':
		p.pos++
		if p.pos < len(p.src) && p.src[p.pos] == '|' {
			p.pos++
		}
		return false, true, nil
	}
	return false, false, nil
}

// parseUnary implements unary := primary | '!' unary
func (p *parser) parseUnary() (node, error) {
	if p.consume('!') {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}
	return p.parsePrimary()
}

// parsePrimary implements
// primary := position | '^' position | position '$' | '(' expr ')'
func (p *parser) parsePrimary() (node, error) {
	if p.consume('(') {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.consume(')') {
			return nil, errors.E(errors.InvalidQuery, "nucstrstr: expected ')'")
		}
		return e, nil
	}
	anchorStart := p.consume('^')
	pattern, err := p.parsePosition()
	if err != nil {
		return nil, err
	}
	anchorEnd := false
	if !anchorStart {
		anchorEnd = p.consume('$')
	}
	sets, err := compileFasta(pattern)
	if err != nil {
		return nil, err
	}
	return &literalNode{sets: sets, anchorStart: anchorStart, anchorEnd: anchorEnd}, nil
}

// parsePosition implements position := fasta | '@' fasta. The
// leading '@' is accepted for grammar compatibility; whether Search
// returns a position or a boolean indicator is decided once, by
// Compile's positional argument, not per occurrence of '@' (see
// DESIGN.md).
func (p *parser) parsePosition() (string, error) {
	p.consume('@')
	return p.parseFasta()
}

// parseFasta implements fasta := FASTA | "'" FASTA "'" | '"' FASTA '"'
func (p *parser) parseFasta() (string, error) {
	p.skipSpace()
	quote := byte(0)
	if p.pos < len(p.src) && (p.src[p.pos] == '\'' || p.src[p.pos] == '"') {
		quote = p.src[p.pos]
		p.pos++
	}
	start := p.pos
	for p.pos < len(p.src) && isIUPACLetter(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", errors.E(errors.InvalidQuery, "nucstrstr: expected a sequence literal")
	}
	lit := p.src[start:p.pos]
	if quote != 0 {
		if p.pos >= len(p.src) || p.src[p.pos] != quote {
			return "", errors.E(errors.InvalidQuery, "nucstrstr: unterminated quoted literal")
		}
		p.pos++
	}
	return lit, nil
}

func compileFasta(pattern string) ([]*bitset.BitSet, error) {
	if len(pattern) == 0 {
		return nil, errors.E(errors.InvalidQuery, "nucstrstr: empty sequence literal")
	}
	sets := make([]*bitset.BitSet, len(pattern))
	for i := 0; i < len(pattern); i++ {
		if !isIUPACLetter(pattern[i]) {
			return nil, errors.E(errors.InvalidQuery, "nucstrstr: invalid IUPAC code in literal")
		}
		sets[i] = iupacSet(pattern[i])
	}
	return sets, nil
}
