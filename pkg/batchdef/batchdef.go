// Package batchdef serializes record batch definitions as FlatBuffers.
// A definition travels ahead of a batch's buffers when a vector is
// transferred or loaded across process boundaries: the value count the
// batch was sealed with plus the layout of each column.
package batchdef

import (
	"errors"
	"fmt"
	"sync"

	flatbuffers "github.com/google/flatbuffers/go"

	batchfb "github.com/augerdb/augerdb/pkg/gen/go/fb/batch"
)

const oneKB = 1024

var (
	ErrEmptyDef     = errors.New("empty batch definition")
	ErrMalformedDef = errors.New("malformed batch definition")
)

// FieldDef describes one column of a serialized batch.
type FieldDef struct {
	Name string
	// Arrow type id of the column
	TypeID int32
	// bytes per value for fixed-width types, 0 for var-width
	Width    int32
	Nullable bool
}

// BatchDef is the metadata for one serialized batch.
type BatchDef struct {
	ValueCount int64
	Fields     []FieldDef
}

// Builder constructs batch definitions. Safe for concurrent use; the
// underlying FlatBuffers builders are pooled.
type Builder struct {
	pool sync.Pool
}

func NewBuilder() *Builder {
	return &Builder{
		pool: sync.Pool{
			New: func() interface{} {
				return flatbuffers.NewBuilder(oneKB)
			},
		},
	}
}

func (b *Builder) getBuilder() *flatbuffers.Builder {
	return b.pool.Get().(*flatbuffers.Builder)
}

func (b *Builder) putBuilder(fb *flatbuffers.Builder) {
	fb.Reset()
	b.pool.Put(fb)
}

// BuildRecordBatchDef serializes def. The returned bytes are a private
// copy, valid after the internal builder is reused.
func (b *Builder) BuildRecordBatchDef(def BatchDef) []byte {
	builder := b.getBuilder()
	defer b.putBuilder(builder)

	fieldOffsets := make([]flatbuffers.UOffsetT, len(def.Fields))
	for i, f := range def.Fields {
		nameOffset := builder.CreateString(f.Name)

		batchfb.FieldDefStart(builder)
		batchfb.FieldDefAddName(builder, nameOffset)
		batchfb.FieldDefAddTypeId(builder, f.TypeID)
		batchfb.FieldDefAddWidth(builder, f.Width)
		batchfb.FieldDefAddNullable(builder, f.Nullable)
		fieldOffsets[i] = batchfb.FieldDefEnd(builder)
	}

	batchfb.RecordBatchDefStartFieldsVector(builder, len(fieldOffsets))
	for i := len(fieldOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(fieldOffsets[i])
	}
	fieldsVec := builder.EndVector(len(fieldOffsets))

	batchfb.RecordBatchDefStart(builder)
	batchfb.RecordBatchDefAddValueCount(builder, def.ValueCount)
	batchfb.RecordBatchDefAddFields(builder, fieldsVec)
	root := batchfb.RecordBatchDefEnd(builder)

	builder.Finish(root)
	data := builder.FinishedBytes()
	result := make([]byte, len(data))
	copy(result, data)
	return result
}

// ParseRecordBatchDef deserializes a definition built with
// BuildRecordBatchDef. FlatBuffers accessors index into the raw buffer,
// so truncated input surfaces as ErrMalformedDef rather than a panic.
func ParseRecordBatchDef(data []byte) (def BatchDef, err error) {
	if len(data) == 0 {
		return BatchDef{}, ErrEmptyDef
	}
	defer func() {
		if r := recover(); r != nil {
			def = BatchDef{}
			err = fmt.Errorf("%w: %v", ErrMalformedDef, r)
		}
	}()

	root := batchfb.GetRootAsRecordBatchDef(data, 0)
	def.ValueCount = root.ValueCount()

	n := root.FieldsLength()
	if n > 0 {
		def.Fields = make([]FieldDef, 0, n)
	}
	var raw batchfb.FieldDef
	for i := 0; i < n; i++ {
		if !root.Fields(&raw, i) {
			return BatchDef{}, ErrMalformedDef
		}
		def.Fields = append(def.Fields, FieldDef{
			Name:     string(raw.Name()),
			TypeID:   raw.TypeId(),
			Width:    raw.Width(),
			Nullable: raw.Nullable(),
		})
	}
	return def, nil
}
