package exec

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// RecordSource replays a fixed set of batches. It is the leaf operator
// scans lower to, and what tests feed pipelines with.
type RecordSource struct {
	schema  *arrow.Schema
	batches []arrow.Record
	pos     int
}

// NewRecordSource builds a source over batches, all of which must carry
// schema. The source retains each batch until Close.
func NewRecordSource(schema *arrow.Schema, batches ...arrow.Record) (*RecordSource, error) {
	for i, b := range batches {
		if !b.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: batch %d has schema %v, want %v", ErrSchemaMismatch, i, b.Schema(), schema)
		}
	}
	for _, b := range batches {
		b.Retain()
	}
	return &RecordSource{schema: schema, batches: batches}, nil
}

func (s *RecordSource) Schema() *arrow.Schema { return s.schema }

func (s *RecordSource) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.batches) {
		return nil, ErrDone
	}
	b := s.batches[s.pos]
	s.pos++
	b.Retain() // the caller gets its own reference
	return b, nil
}

func (s *RecordSource) Close() error {
	for _, b := range s.batches {
		b.Release()
	}
	s.batches = nil
	s.pos = 0
	return nil
}
