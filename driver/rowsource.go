// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package driver

import "github.com/ncbi-sra/fasterq-go/schema"

// RowSource is the external collaborator that supplies rows to
// extract: a cursor over an accession's spots, in whatever order it
// keeps them. This package never reaches into the row source's
// storage; it only calls Next until io.EOF, matching the teacher's
// own scanner convention (see recordio/scannerv2.go).
type RowSource interface {
	// Next returns the next record, or a nil record and io.EOF once
	// the source is exhausted. Any other non-nil error aborts
	// extraction.
	Next() (*schema.Record, error)
}
