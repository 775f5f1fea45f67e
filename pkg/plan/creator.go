package plan

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/augerdb/augerdb/pkg/exec"
)

// Creator lowers a plan tree into runnable operators, issuing each node
// a stable operator id along the way. One creator per lowering; ids are
// assigned in the order nodes finish lowering.
type Creator struct {
	mem  memory.Allocator
	ids  map[Node]int
	next int
}

// NewCreator builds a creator. A nil allocator falls back to the Go
// allocator.
func NewCreator(mem memory.Allocator) *Creator {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Creator{mem: mem, ids: make(map[Node]int)}
}

// OperatorID issues or recalls the id for node.
func (c *Creator) OperatorID(node Node) int {
	if id, ok := c.ids[node]; ok {
		return id
	}
	id := c.next
	c.next++
	c.ids[node] = id
	return id
}

// Allocator is what lowered operators allocate batches from.
func (c *Creator) Allocator() memory.Allocator { return c.mem }

// Build lowers root and its whole subtree into one pipeline.
func (c *Creator) Build(root Node) (exec.Operator, error) {
	return root.Operator(c)
}

// Explain renders the tree one line per node, children indented, with
// row and cost estimates.
func Explain(root Node, f *CostFactory) string {
	e := &explainVisitor{f: f}
	// explain visitors never return errors
	_ = root.Accept(e)
	return e.sb.String()
}

type explainVisitor struct {
	f     *CostFactory
	depth int
	sb    strings.Builder
}

func (e *explainVisitor) VisitEnter(n Node) error {
	cost := n.SelfCost(e.f)
	fmt.Fprintf(&e.sb, "%s%s rows=%.0f cost=%s\n",
		strings.Repeat("  ", e.depth), n.Name(), n.RowCount(), cost)
	e.depth++
	return nil
}

func (e *explainVisitor) VisitLeave(Node) error {
	e.depth--
	return nil
}
