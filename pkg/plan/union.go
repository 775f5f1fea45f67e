package plan

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/augerdb/augerdb/pkg/exec"
)

// unionBase carries what both union flavors share: ordered inputs with
// one schema.
type unionBase struct {
	inputs []Node
	schema *arrow.Schema
}

func newUnionBase(inputs []Node) (unionBase, error) {
	if len(inputs) == 0 {
		return unionBase{}, ErrNoInputs
	}
	schema := inputs[0].Schema()
	for _, in := range inputs[1:] {
		if !in.Schema().Equal(schema) {
			return unionBase{}, ErrSchemaMismatch
		}
	}
	return unionBase{inputs: inputs, schema: schema}, nil
}

func (b *unionBase) Schema() *arrow.Schema { return b.schema }

func (b *unionBase) Children() []Node {
	out := make([]Node, len(b.inputs))
	copy(out, b.inputs)
	return out
}

// totalInputRows sums the input estimates; union cost scales with rows
// flowing through, whatever survives.
func (b *unionBase) totalInputRows() float64 {
	var total float64
	for _, in := range b.inputs {
		total += in.RowCount()
	}
	return total
}

func (b *unionBase) lowerInputs(c *Creator) ([]exec.Operator, error) {
	ops := make([]exec.Operator, 0, len(b.inputs))
	for _, in := range b.inputs {
		op, err := in.Operator(c)
		if err != nil {
			for _, built := range ops {
				built.Close()
			}
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (b *unionBase) accept(n Node, v Visitor) error {
	if err := v.VisitEnter(n); err != nil {
		return err
	}
	for _, in := range b.inputs {
		if err := in.Accept(v); err != nil {
			return err
		}
	}
	return v.VisitLeave(n)
}

// UnionAllNode concatenates its inputs, duplicates included.
type UnionAllNode struct {
	unionBase
}

func NewUnionAll(inputs ...Node) (*UnionAllNode, error) {
	base, err := newUnionBase(inputs)
	if err != nil {
		return nil, err
	}
	return &UnionAllNode{unionBase: base}, nil
}

func (n *UnionAllNode) Name() string      { return "UnionAll" }
func (n *UnionAllNode) RowCount() float64 { return n.totalInputRows() }

func (n *UnionAllNode) SelfCost(f *CostFactory) Cost {
	total := n.totalInputRows()
	return f.Make(total, total*baseCPUCost, 0, 0)
}

func (n *UnionAllNode) SupportedModes() []SelectionMode { return DefaultModes }
func (n *UnionAllNode) Mode() SelectionMode             { return SelectionNone }

func (n *UnionAllNode) Operator(c *Creator) (exec.Operator, error) {
	ops, err := n.lowerInputs(c)
	if err != nil {
		return nil, err
	}
	c.OperatorID(n)
	return exec.NewUnionAll(ops...)
}

func (n *UnionAllNode) Accept(v Visitor) error { return n.accept(n, v) }

// UnionDistinctNode concatenates its inputs and drops duplicate rows.
// Dedup is pure compute over every input row, so the cost carries no IO
// or network component.
type UnionDistinctNode struct {
	unionBase
}

func NewUnionDistinct(inputs ...Node) (*UnionDistinctNode, error) {
	base, err := newUnionBase(inputs)
	if err != nil {
		return nil, err
	}
	return &UnionDistinctNode{unionBase: base}, nil
}

func (n *UnionDistinctNode) Name() string { return "UnionDistinct" }

// RowCount is the total input rows: an upper bound, since the duplicate
// share is unknown at plan time.
func (n *UnionDistinctNode) RowCount() float64 { return n.totalInputRows() }

func (n *UnionDistinctNode) SelfCost(f *CostFactory) Cost {
	total := n.totalInputRows()
	return f.Make(total, total*baseCPUCost, 0, 0)
}

func (n *UnionDistinctNode) SupportedModes() []SelectionMode { return DefaultModes }
func (n *UnionDistinctNode) Mode() SelectionMode             { return SelectionNone }

// Operator lowers to a union-all feeding a distinct, the full pipeline
// for the node's semantics, under this node's single operator id.
func (n *UnionDistinctNode) Operator(c *Creator) (exec.Operator, error) {
	ops, err := n.lowerInputs(c)
	if err != nil {
		return nil, err
	}
	c.OperatorID(n)

	union, err := exec.NewUnionAll(ops...)
	if err != nil {
		return nil, err
	}
	return exec.NewDistinct(union, c.Allocator())
}

func (n *UnionDistinctNode) Accept(v Visitor) error { return n.accept(n, v) }
