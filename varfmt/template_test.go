// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package varfmt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbi-sra/fasterq-go/varfmt"
)

func render(t *testing.T, tpl *varfmt.Template, strs [][]byte, ints []int64) string {
	t.Helper()
	out, err := tpl.Render(make([]byte, 0, tpl.ScratchSize()), strs, ints)
	require.NoError(t, err)
	return string(out)
}

func TestCompileAndRenderAccessionSpotID(t *testing.T) {
	tpl, err := varfmt.Compile("@$ac.$si/$sn")
	require.NoError(t, err)

	strs := [][]byte{[]byte("SRR000001"), []byte("")}
	ints := []int64{42}
	// $sn falls back to $si (int slot 0) because the spot-name string is empty.
	assert.Equal(t, "@SRR000001.42/42", render(t, tpl, strs, ints))
}

func TestCompileAndRenderSpotNamePresent(t *testing.T) {
	tpl, err := varfmt.Compile("@$ac.$si/$sn")
	require.NoError(t, err)

	strs := [][]byte{[]byte("SRR000001"), []byte("NAME1")}
	ints := []int64{7}
	assert.Equal(t, "@SRR000001.7/NAME1", render(t, tpl, strs, ints))
}

func TestCompileTrailingLiteral(t *testing.T) {
	tpl, err := varfmt.Compile("$ac-end")
	require.NoError(t, err)
	strs := [][]byte{[]byte("ACC")}
	assert.Equal(t, "ACC-end", render(t, tpl, strs, nil))
}

func TestCompileNoTokens(t *testing.T) {
	tpl, err := varfmt.Compile("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", render(t, tpl, nil, nil))
}

func TestCompileReadPairTemplate(t *testing.T) {
	tpl, err := varfmt.Compile("@$ac.$si $ri length=$rl\n$RD1")
	require.NoError(t, err)

	strs := [][]byte{[]byte("SRR1"), nil, nil, []byte("ACGTACGT")}
	ints := []int64{1, 1, 8}
	assert.Equal(t, "@SRR1.1 1 length=8\nACGTACGT", render(t, tpl, strs, ints))
}

func TestScratchSizeIsFourTimesFixedLength(t *testing.T) {
	tpl, err := varfmt.Compile("@$ac.$si")
	require.NoError(t, err)
	// fixed length = len("@") + len(".") + 20 (one int slot) = 22
	assert.Equal(t, 88, tpl.ScratchSize())
}

func TestRenderGrowsScratchForLongStrings(t *testing.T) {
	tpl, err := varfmt.Compile("$RD1")
	require.NoError(t, err)
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'A'
	}
	out, err := tpl.Render(nil, [][]byte{nil, nil, nil, long}, nil)
	require.NoError(t, err)
	assert.Equal(t, long, out)
}

func TestRenderIntSlotOutOfRangeFails(t *testing.T) {
	tpl, err := varfmt.Compile("$si")
	require.NoError(t, err)
	_, err = tpl.Render(nil, nil, nil)
	require.Error(t, err)
}
