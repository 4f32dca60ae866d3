// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package copymachine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncbi-sra/fasterq-go/copymachine"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestCopyConcatenatesInOrderAndRemovesSources(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a", bytes.Repeat([]byte{'a'}, 300))
	b := writeTempFile(t, dir, "b", bytes.Repeat([]byte{'b'}, 150))
	c := writeTempFile(t, dir, "c", []byte{})

	var dest bytes.Buffer
	progress, err := copymachine.Copy([]string{a, b, c}, &dest, 64, 0)
	require.NoError(t, err)

	want := append(bytes.Repeat([]byte{'a'}, 300), bytes.Repeat([]byte{'b'}, 150)...)
	require.Equal(t, want, dest.Bytes())
	require.EqualValues(t, 450, progress.BytesDone)

	for _, p := range []string{a, b, c} {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "source %s should be removed", p)
	}
}

type limitedWriter struct {
	remaining int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.remaining {
		n := w.remaining
		w.remaining = 0
		return n, os.ErrClosed
	}
	w.remaining -= len(p)
	return len(p), nil
}

func TestCopySpaceExhausted(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a", bytes.Repeat([]byte{'a'}, 1000))

	dest := &limitedWriter{remaining: 100}
	_, err := copymachine.Copy([]string{a}, dest, 64, 0)
	require.Error(t, err)
}
