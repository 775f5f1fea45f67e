package exec

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64},
		{Name: "active", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

type row struct {
	id       int64
	name     string
	nameNull bool
	score    float64
	active   bool
}

func buildRecord(rows ...row) arrow.Record {
	rb := array.NewRecordBuilder(memory.NewGoAllocator(), testSchema())
	defer rb.Release()

	for _, r := range rows {
		rb.Field(0).(*array.Int64Builder).Append(r.id)
		if r.nameNull {
			rb.Field(1).AppendNull()
		} else {
			rb.Field(1).(*array.StringBuilder).Append(r.name)
		}
		rb.Field(2).(*array.Float64Builder).Append(r.score)
		rb.Field(3).(*array.BooleanBuilder).Append(r.active)
	}
	return rb.NewRecord()
}

func sourceOf(t *testing.T, batches ...arrow.Record) *RecordSource {
	t.Helper()
	src, err := NewRecordSource(testSchema(), batches...)
	require.NoError(t, err)
	for _, b := range batches {
		b.Release() // source holds its own references now
	}
	return src
}

func drain(t *testing.T, op Operator) []row {
	t.Helper()
	ctx := context.Background()

	var out []row
	for {
		rec, err := op.Next(ctx)
		if errors.Is(err, ErrDone) {
			return out
		}
		require.NoError(t, err)

		ids := rec.Column(0).(*array.Int64)
		names := rec.Column(1).(*array.String)
		scores := rec.Column(2).(*array.Float64)
		actives := rec.Column(3).(*array.Boolean)
		for i := 0; i < int(rec.NumRows()); i++ {
			r := row{id: ids.Value(i), score: scores.Value(i), active: actives.Value(i)}
			if names.IsNull(i) {
				r.nameNull = true
			} else {
				r.name = names.Value(i)
			}
			out = append(out, r)
		}
		rec.Release()
	}
}

func TestRecordSource_ReplaysInOrder(t *testing.T) {
	src := sourceOf(t,
		buildRecord(row{id: 1, name: "a"}, row{id: 2, name: "b"}),
		buildRecord(row{id: 3, name: "c"}),
	)
	defer func() {
		assert.NoError(t, src.Close())
	}()

	rows := drain(t, src)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].id)
	assert.Equal(t, int64(3), rows[2].id)
}

func TestRecordSource_RejectsForeignSchema(t *testing.T) {
	other := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)
	rec := buildRecord(row{id: 1})
	defer rec.Release()

	_, err := NewRecordSource(other, rec)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestUnionAll_ConcatenatesChildStreams(t *testing.T) {
	left := sourceOf(t, buildRecord(row{id: 1}, row{id: 2}))
	right := sourceOf(t, buildRecord(row{id: 2}, row{id: 3}))

	u, err := NewUnionAll(left, right)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, u.Close())
	}()

	rows := drain(t, u)
	require.Len(t, rows, 4, "union all keeps duplicates")
	assert.Equal(t, []int64{1, 2, 2, 3}, []int64{rows[0].id, rows[1].id, rows[2].id, rows[3].id})
}

func TestUnionAll_RequiresChildren(t *testing.T) {
	_, err := NewUnionAll()
	assert.ErrorIs(t, err, ErrNoChildren)
}

func TestUnionAll_RequiresMatchingSchemas(t *testing.T) {
	other := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)
	rb := array.NewRecordBuilder(memory.NewGoAllocator(), other)
	rb.Field(0).(*array.Int64Builder).Append(1)
	rec := rb.NewRecord()
	rb.Release()

	foreign, err := NewRecordSource(other, rec)
	rec.Release()
	require.NoError(t, err)
	defer foreign.Close()

	left := sourceOf(t, buildRecord(row{id: 1}))
	defer left.Close()

	_, err = NewUnionAll(left, foreign)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestUnionAll_HonorsContext(t *testing.T) {
	u, err := NewUnionAll(sourceOf(t, buildRecord(row{id: 1})))
	require.NoError(t, err)
	defer u.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = u.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDistinct_DropsDuplicateRows(t *testing.T) {
	// duplicates both within and across batches
	src := sourceOf(t,
		buildRecord(
			row{id: 1, name: "a", score: 1.5, active: true},
			row{id: 1, name: "a", score: 1.5, active: true},
			row{id: 2, name: "b", score: 2.5, active: false},
		),
		buildRecord(
			row{id: 1, name: "a", score: 1.5, active: true},
			row{id: 3, name: "c", score: 3.5, active: true},
		),
	)

	d, err := NewDistinct(src, nil)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, d.Close())
	}()

	rows := drain(t, d)
	require.Len(t, rows, 3)
	// survivors keep first-arrival order
	assert.Equal(t, int64(1), rows[0].id)
	assert.Equal(t, int64(2), rows[1].id)
	assert.Equal(t, int64(3), rows[2].id)
}

func TestDistinct_EveryColumnIsPartOfTheKey(t *testing.T) {
	src := sourceOf(t, buildRecord(
		row{id: 1, name: "a", score: 1.5, active: true},
		row{id: 1, name: "a", score: 1.5, active: false},
		row{id: 1, name: "a", score: 2.5, active: true},
		row{id: 1, name: "b", score: 1.5, active: true},
	))

	d, err := NewDistinct(src, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Len(t, drain(t, d), 4, "rows differing in any column are distinct")
}

func TestDistinct_NullsCompareEqual(t *testing.T) {
	src := sourceOf(t, buildRecord(
		row{id: 1, nameNull: true, score: 1.5, active: true},
		row{id: 1, nameNull: true, score: 1.5, active: true},
		row{id: 1, name: "", score: 1.5, active: true},
	))

	d, err := NewDistinct(src, nil)
	require.NoError(t, err)
	defer d.Close()

	rows := drain(t, d)
	require.Len(t, rows, 2, "null equals null, and null is not the empty string")
	assert.True(t, rows[0].nameNull)
	assert.False(t, rows[1].nameNull)
}

func TestDistinct_NaNsCompareEqual(t *testing.T) {
	src := sourceOf(t, buildRecord(
		row{id: 1, name: "a", score: math.NaN(), active: true},
		row{id: 1, name: "a", score: math.NaN(), active: true},
	))

	d, err := NewDistinct(src, nil)
	require.NoError(t, err)
	defer d.Close()

	rows := drain(t, d)
	require.Len(t, rows, 1)
	assert.True(t, math.IsNaN(rows[0].score))
}

func TestDistinct_EmptyInput(t *testing.T) {
	d, err := NewDistinct(sourceOf(t), nil)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
}

func TestDistinct_RejectsUnsupportedColumnType(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}},
	}, nil)
	src, err := NewRecordSource(schema)
	require.NoError(t, err)
	defer src.Close()

	_, err = NewDistinct(src, nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDistinct_OverUnionAll(t *testing.T) {
	// the shape UnionDistinct plans lower to
	left := sourceOf(t, buildRecord(
		row{id: 1, name: "a", score: 1.5, active: true},
		row{id: 2, name: "b", score: 2.5, active: true},
	))
	right := sourceOf(t, buildRecord(
		row{id: 2, name: "b", score: 2.5, active: true},
		row{id: 3, name: "c", score: 3.5, active: true},
	))

	u, err := NewUnionAll(left, right)
	require.NoError(t, err)
	d, err := NewDistinct(u, memory.NewGoAllocator())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, d.Close())
	}()

	rows := drain(t, d)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].id)
	assert.Equal(t, int64(2), rows[1].id)
	assert.Equal(t, int64(3), rows[2].id)
}

func TestDistinct_ManyBatches(t *testing.T) {
	// enough unique rows to force several output flushes
	var batches []arrow.Record
	for b := 0; b < 5; b++ {
		rows := make([]row, 0, 500)
		for i := 0; i < 500; i++ {
			rows = append(rows, row{id: int64(b*500 + i), name: "n", score: float64(i), active: i%2 == 0})
		}
		batches = append(batches, buildRecord(rows...))
	}

	d, err := NewDistinct(sourceOf(t, batches...), nil)
	require.NoError(t, err)
	defer d.Close()

	rows := drain(t, d)
	assert.Len(t, rows, 2500)

	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		require.False(t, seen[r.id], "row %d emitted twice", r.id)
		seen[r.id] = true
	}
}
