// Package exec runs physical plan operators over Arrow record batches.
//
// Operators form a pull pipeline: each Next call hands the caller one
// batch until the stream drains with ErrDone. Records returned by Next
// are owned by the caller, which must Release them.
package exec

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
)

var (
	// ErrDone reports a drained operator. Not a failure.
	ErrDone = errors.New("operator exhausted")

	ErrNoChildren      = errors.New("operator requires at least one child")
	ErrSchemaMismatch  = errors.New("child schemas do not match")
	ErrUnsupportedType = errors.New("unsupported column type")
)

// Operator is one node of a running physical plan. Operators are
// single-owner, driven by one goroutine.
type Operator interface {
	// Schema describes every batch Next will produce.
	Schema() *arrow.Schema

	// Next returns the next batch, or ErrDone once the stream is
	// drained. The caller owns the returned record.
	Next(ctx context.Context) (arrow.Record, error)

	// Close releases operator state and propagates to children.
	Close() error
}

// closeAll closes operators left to right and keeps the first error.
func closeAll(ops []Operator) error {
	var first error
	for _, op := range ops {
		if err := op.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
