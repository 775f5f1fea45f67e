// Package plan models physical query plans over Arrow schemas: a small
// node tree with row and cost estimates that lowers into pkg/exec
// operator pipelines.
package plan

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/augerdb/augerdb/pkg/exec"
)

var (
	ErrNoInputs       = errors.New("node requires at least one input")
	ErrSchemaMismatch = errors.New("input schemas do not match")
	ErrNilSchema      = errors.New("schema must not be nil")
)

// SelectionMode says how a node's output marks selected rows. Everything
// here materializes batches densely and advertises SelectionNone; the
// two indirection widths exist for operators that filter through a
// selection vector instead of copying rows.
type SelectionMode uint8

const (
	SelectionNone SelectionMode = iota
	SelectionTwoByte
	SelectionFourByte
)

func (m SelectionMode) String() string {
	switch m {
	case SelectionNone:
		return "NONE"
	case SelectionTwoByte:
		return "TWO_BYTE"
	case SelectionFourByte:
		return "FOUR_BYTE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// DefaultModes is the support set for nodes that never consume selection
// vectors.
var DefaultModes = []SelectionMode{SelectionNone}

// Node is one operator of a physical plan.
type Node interface {
	// Name labels the node in explain output.
	Name() string

	// Schema describes the node's output batches.
	Schema() *arrow.Schema

	Children() []Node

	// RowCount estimates output rows. Estimates are upper bounds for
	// nodes that drop rows.
	RowCount() float64

	// SelfCost estimates this node's own expense, excluding children.
	SelfCost(f *CostFactory) Cost

	// SupportedModes lists the selection modes the node can consume.
	SupportedModes() []SelectionMode

	// Mode is the selection mode of the node's own output.
	Mode() SelectionMode

	// Operator lowers the node and its subtree into a runnable pipeline.
	Operator(c *Creator) (exec.Operator, error)

	// Accept walks the subtree: VisitEnter before children, VisitLeave
	// after.
	Accept(v Visitor) error
}

// Visitor walks a plan tree depth-first.
type Visitor interface {
	VisitEnter(node Node) error
	VisitLeave(node Node) error
}

// TreeCost sums SelfCost over root and its subtree.
func TreeCost(root Node, f *CostFactory) Cost {
	total := root.SelfCost(f)
	for _, child := range root.Children() {
		total = total.Add(TreeCost(child, f))
	}
	return total
}
