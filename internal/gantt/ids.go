package gantt

import "sync/atomic"

// ManualIDBase starts the manual task id space above every generated stage id.
const ManualIDBase int64 = 1_000_000_000

// IDGen hands out monotonically increasing ids.
type IDGen struct {
	last atomic.Int64
}

func NewIDGen(start int64) *IDGen {
	g := &IDGen{}
	g.last.Store(start)
	return g
}

func (g *IDGen) Next() int64 {
	return g.last.Add(1)
}

// Observe makes sure future ids are greater than id.
func (g *IDGen) Observe(id int64) {
	for {
		cur := g.last.Load()
		if id <= cur || g.last.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (g *IDGen) Last() int64 {
	return g.last.Load()
}
