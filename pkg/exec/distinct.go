package exec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/twmb/murmur3"
)

// distinctBatchSize is how many surviving rows accumulate before a batch
// is emitted.
const distinctBatchSize = 1024

// Distinct drops rows whose full column tuple has been seen before.
// Row identity hashes with murmur3 over a canonical byte encoding; hash
// hits are verified against the encoded key, so colliding tuples still
// come out distinct. Nulls compare equal to nulls, NaNs to NaNs.
//
// Supported column types: INT64, FLOAT64, STRING, BOOL.
type Distinct struct {
	child   Operator
	schema  *arrow.Schema
	builder *array.RecordBuilder

	// hash -> encoded keys with that hash, in arrival order
	seen    map[uint64][][]byte
	keyBuf  []byte
	pending int
	done    bool
}

func NewDistinct(child Operator, mem memory.Allocator) (*Distinct, error) {
	schema := child.Schema()
	for _, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.INT64, arrow.FLOAT64, arrow.STRING, arrow.BOOL:
		default:
			return nil, fmt.Errorf("%w: column %q has type %s", ErrUnsupportedType, f.Name, f.Type)
		}
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Distinct{
		child:   child,
		schema:  schema,
		builder: array.NewRecordBuilder(mem, schema),
		seen:    make(map[uint64][][]byte),
	}, nil
}

func (d *Distinct) Schema() *arrow.Schema { return d.schema }

func (d *Distinct) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for !d.done {
		rec, err := d.child.Next(ctx)
		if errors.Is(err, ErrDone) {
			d.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		d.absorb(rec)
		rec.Release()

		if d.pending >= distinctBatchSize {
			return d.flush(), nil
		}
	}

	if d.pending > 0 {
		return d.flush(), nil
	}
	return nil, ErrDone
}

func (d *Distinct) Close() error {
	d.builder.Release()
	d.seen = nil
	return d.child.Close()
}

// absorb folds one upstream batch into the dedup table, appending unseen
// rows to the output builder.
func (d *Distinct) absorb(rec arrow.Record) {
	cols := make([]arrow.Array, rec.NumCols())
	for i := range cols {
		cols[i] = rec.Column(i)
	}

	rows := int(rec.NumRows())
	for row := 0; row < rows; row++ {
		d.keyBuf = appendRowKey(d.keyBuf[:0], cols, row)
		if d.remember(d.keyBuf) {
			appendRow(d.builder, cols, row)
			d.pending++
		}
	}
}

// remember returns true the first time key shows up.
func (d *Distinct) remember(key []byte) bool {
	h := murmur3.Sum64(key)
	for _, existing := range d.seen[h] {
		if bytes.Equal(existing, key) {
			return false
		}
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	d.seen[h] = append(d.seen[h], owned)
	return true
}

func (d *Distinct) flush() arrow.Record {
	d.pending = 0
	return d.builder.NewRecord()
}

// appendRowKey encodes one row as bytes such that two rows encode equal
// iff they are equal: a null marker per column, length-prefixed strings,
// canonicalized NaNs.
func appendRowKey(key []byte, cols []arrow.Array, row int) []byte {
	for _, col := range cols {
		if col.IsNull(row) {
			key = append(key, 0)
			continue
		}
		key = append(key, 1)

		switch a := col.(type) {
		case *array.Int64:
			key = binary.LittleEndian.AppendUint64(key, uint64(a.Value(row)))
		case *array.Float64:
			v := a.Value(row)
			if math.IsNaN(v) {
				v = math.NaN()
			}
			key = binary.LittleEndian.AppendUint64(key, math.Float64bits(v))
		case *array.String:
			s := a.Value(row)
			key = binary.LittleEndian.AppendUint32(key, uint32(len(s)))
			key = append(key, s...)
		case *array.Boolean:
			if a.Value(row) {
				key = append(key, 1)
			} else {
				key = append(key, 0)
			}
		}
	}
	return key
}

// appendRow copies one row into the output builder.
func appendRow(rb *array.RecordBuilder, cols []arrow.Array, row int) {
	for i, col := range cols {
		fb := rb.Field(i)
		if col.IsNull(row) {
			fb.AppendNull()
			continue
		}
		switch a := col.(type) {
		case *array.Int64:
			fb.(*array.Int64Builder).Append(a.Value(row))
		case *array.Float64:
			fb.(*array.Float64Builder).Append(a.Value(row))
		case *array.String:
			fb.(*array.StringBuilder).Append(a.Value(row))
		case *array.Boolean:
			fb.(*array.BooleanBuilder).Append(a.Value(row))
		}
	}
}
