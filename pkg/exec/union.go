package exec

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
)

// UnionAll concatenates its children's streams in child order, duplicates
// included. All children must share one schema, checked at construction.
type UnionAll struct {
	schema   *arrow.Schema
	children []Operator
	current  int
}

func NewUnionAll(children ...Operator) (*UnionAll, error) {
	if len(children) == 0 {
		return nil, ErrNoChildren
	}
	schema := children[0].Schema()
	for _, c := range children[1:] {
		if !c.Schema().Equal(schema) {
			return nil, ErrSchemaMismatch
		}
	}
	return &UnionAll{schema: schema, children: children}, nil
}

func (u *UnionAll) Schema() *arrow.Schema { return u.schema }

func (u *UnionAll) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for u.current < len(u.children) {
		rec, err := u.children[u.current].Next(ctx)
		if errors.Is(err, ErrDone) {
			u.current++
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ErrDone
}

func (u *UnionAll) Close() error {
	return closeAll(u.children)
}
