// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package nucstrstr

// Search scans count packed-2bit bases starting at base index start
// within window (packed four bases per byte, matching lookupstore's
// convention) and evaluates the compiled query against them.
//
// In positional mode, it returns the 1-based base position of the
// first match, or 0 if there is none; a match that carries no base
// position of its own (such as a negation) reports 1. Otherwise it
// returns a non-zero value (1) on any match and 0 otherwise.
func (h *Handle) Search(window []byte, start, count int) (int, error) {
	unpacked := unpackBases(window, start, count)
	matched, pos := h.root.eval(unpacked, count)
	if !matched {
		return 0, nil
	}
	if h.positional && pos > 0 {
		return pos, nil
	}
	return 1, nil
}
