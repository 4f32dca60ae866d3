// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package quit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbi-sra/fasterq-go/errors"
)

func TestRequestedAndCheck(t *testing.T) {
	defer reset()

	assert.False(t, Requested())
	require.NoError(t, Check())

	Request()
	assert.True(t, Requested())

	err := Check()
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Cancelled, err))
}

func TestRequestIsIdempotent(t *testing.T) {
	defer reset()

	Request()
	Request()
	assert.True(t, Requested())
}
