package plan

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/augerdb/augerdb/pkg/exec"
)

// ScanNode is a leaf over batches already materialized in memory. The
// node borrows the batches; they must stay alive until the lowered
// operators are closed.
type ScanNode struct {
	schema  *arrow.Schema
	batches []arrow.Record
	rows    float64
}

func NewScan(schema *arrow.Schema, batches ...arrow.Record) (*ScanNode, error) {
	if schema == nil {
		return nil, ErrNilSchema
	}
	var rows float64
	for _, b := range batches {
		if !b.Schema().Equal(schema) {
			return nil, ErrSchemaMismatch
		}
		rows += float64(b.NumRows())
	}
	return &ScanNode{schema: schema, batches: batches, rows: rows}, nil
}

func (n *ScanNode) Name() string          { return "Scan" }
func (n *ScanNode) Schema() *arrow.Schema { return n.schema }
func (n *ScanNode) Children() []Node      { return nil }
func (n *ScanNode) RowCount() float64     { return n.rows }

func (n *ScanNode) SelfCost(f *CostFactory) Cost {
	return f.Make(n.rows, n.rows*baseCPUCost, 0, 0)
}

func (n *ScanNode) SupportedModes() []SelectionMode { return DefaultModes }
func (n *ScanNode) Mode() SelectionMode             { return SelectionNone }

func (n *ScanNode) Operator(c *Creator) (exec.Operator, error) {
	c.OperatorID(n)
	return exec.NewRecordSource(n.schema, n.batches...)
}

func (n *ScanNode) Accept(v Visitor) error {
	if err := v.VisitEnter(n); err != nil {
		return err
	}
	return v.VisitLeave(n)
}
