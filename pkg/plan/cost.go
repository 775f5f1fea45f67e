package plan

import "fmt"

// baseCPUCost is the cost of one base operation on one row. Every other
// CPU estimate is a multiple of it.
const baseCPUCost = 1.0

// Cost is the estimated expense of a plan node in abstract planner
// units. Rows rides along for explain output and is not part of the
// comparable expense.
type Cost struct {
	Rows    float64
	CPU     float64
	IO      float64
	Network float64
}

func (c Cost) Add(other Cost) Cost {
	return Cost{
		Rows:    c.Rows + other.Rows,
		CPU:     c.CPU + other.CPU,
		IO:      c.IO + other.IO,
		Network: c.Network + other.Network,
	}
}

// Score collapses a cost into one comparable number.
func (c Cost) Score() float64 {
	return c.CPU + c.IO + c.Network
}

func (c Cost) String() string {
	return fmt.Sprintf("{rows=%.1f, cpu=%.1f, io=%.1f, network=%.1f}", c.Rows, c.CPU, c.IO, c.Network)
}

// CostFactory builds costs with planner-flavor weights, so a deployment
// can bias CPU against IO without touching the per-node estimates.
// Zero-valued weights are raised to 1.
type CostFactory struct {
	CPUWeight     float64
	IOWeight      float64
	NetworkWeight float64
}

func DefaultCostFactory() *CostFactory {
	return &CostFactory{CPUWeight: 1, IOWeight: 1, NetworkWeight: 1}
}

func (f *CostFactory) Make(rows, cpu, io, network float64) Cost {
	cpuW, ioW, netW := f.CPUWeight, f.IOWeight, f.NetworkWeight
	if cpuW == 0 {
		cpuW = 1
	}
	if ioW == 0 {
		ioW = 1
	}
	if netW == 0 {
		netW = 1
	}
	return Cost{
		Rows:    rows,
		CPU:     cpu * cpuW,
		IO:      io * ioW,
		Network: network * netW,
	}
}
