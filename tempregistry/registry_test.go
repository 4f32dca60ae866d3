// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tempregistry_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbi-sra/fasterq-go/tempregistry"
)

type recordingCleanup struct {
	announced []string
}

func (c *recordingCleanup) Announce(path string) {
	c.announced = append(c.announced, path)
}

func writeSeg(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegisterAnnouncesToCleanup(t *testing.T) {
	dir := t.TempDir()
	cleanup := &recordingCleanup{}
	r := tempregistry.New(cleanup)

	p1 := writeSeg(t, dir, "seg.0.a", "aaa")
	r.Register(0, p1)

	assert.Equal(t, []string{p1}, cleanup.announced)
}

func TestFlushToFilesConcatenatesEachGroupInOrder(t *testing.T) {
	dir := t.TempDir()
	r := tempregistry.New(nil)

	// Register group 0's segments out of lexical order to verify
	// FlushToFiles reorders them.
	b := writeSeg(t, dir, "b", "BBB")
	a := writeSeg(t, dir, "a", "AAA")
	r.Register(0, b)
	r.Register(0, a)

	c := writeSeg(t, dir, "c", "CCC")
	r.Register(1, c)

	base := filepath.Join(dir, "out.fastq")
	progress, err := r.FlushToFiles(base, tempregistry.FlushOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 9, progress.BytesTotal)
	assert.EqualValues(t, 9, progress.Done())

	got0, err := os.ReadFile(base)
	require.NoError(t, err)
	assert.Equal(t, "AAABBB", string(got0))

	got1, err := os.ReadFile(filepath.Join(dir, "out_1.fastq"))
	require.NoError(t, err)
	assert.Equal(t, "CCC", string(got1))

	for _, p := range []string{a, b, c} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "source %s should be removed", p)
	}
}

func TestFlushToFilesWithoutForceFailsOnExistingDestination(t *testing.T) {
	dir := t.TempDir()
	r := tempregistry.New(nil)
	r.Register(0, writeSeg(t, dir, "seg", "x"))

	base := filepath.Join(dir, "out.fastq")
	require.NoError(t, os.WriteFile(base, []byte("existing"), 0644))

	_, err := r.FlushToFiles(base, tempregistry.FlushOptions{})
	require.Error(t, err)
}

func TestFlushToFilesForceOverwritesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	r := tempregistry.New(nil)
	r.Register(0, writeSeg(t, dir, "seg", "fresh"))

	base := filepath.Join(dir, "out.fastq")
	require.NoError(t, os.WriteFile(base, []byte("existing-longer-content"), 0644))

	_, err := r.FlushToFiles(base, tempregistry.FlushOptions{Force: true})
	require.NoError(t, err)

	got, err := os.ReadFile(base)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestFlushToStdoutStreamsAndRemovesSources(t *testing.T) {
	dir := t.TempDir()
	r := tempregistry.New(nil)
	p1 := writeSeg(t, dir, "p1", "hello-")
	p2 := writeSeg(t, dir, "p2", "world")
	r.Register(0, p1)
	r.Register(0, p2)

	var out bytes.Buffer
	progress, err := r.FlushToStdout(&out)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", out.String())
	assert.EqualValues(t, 11, progress.Done())

	for _, p := range []string{p1, p2} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err))
	}
}
