// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package quit provides a process-wide cancellation flag that long
// running loops poll cooperatively, mirroring the original
// extraction tool's quitting_flag: a single global rather than a
// context.Context, so a loop can poll it without a request-scoped
// context threaded through it. In this module the driver's record
// loops are its callers.
package quit

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"code.hybscloud.com/atomix"

	"github.com/ncbi-sra/fasterq-go/errors"
)

var requested atomix.Bool

// Requested reports whether cancellation has been requested.
func Requested() bool {
	return requested.Load()
}

// Request sets the cancellation flag. Idempotent: calling it more
// than once has no further effect.
func Request() {
	requested.Store(true)
}

// Check returns errors.Cancelled if cancellation has been requested,
// nil otherwise. Long-running loops call this each iteration (the
// driver calls it once per record) rather than paying for a
// context.Context argument on every internal call.
func Check() error {
	if requested.Load() {
		return errors.E(errors.Cancelled, "quit: cancellation requested")
	}
	return nil
}

// reset clears the flag. Only used by tests: the flag is process-wide
// and production code never needs to un-request cancellation.
func reset() {
	requested.Store(false)
}

var installOnce sync.Once

// InstallSignalHandler arranges for SIGINT and SIGTERM to call
// Request, so that an operator's Ctrl-C unwinds the pipeline through
// the same Cancelled error path as a programmatic Request call
// rather than the process dying mid-write. Safe to call more than
// once; only the first call installs the handler.
func InstallSignalHandler() {
	installOnce.Do(func() {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			for range ch {
				Request()
			}
		}()
	})
}
