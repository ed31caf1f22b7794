package timer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"
)

// Label is the 16-byte identity stamped on a controller, used both as its
// external handle tag and as the path segment the dispatch queue
// round-robins expired timers by.
type Label = ulid.ULID

var (
	ulidEntropyMu sync.Mutex
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newLabel() Label {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
}

// Controller is one independently-sized timer domain: it owns its own
// wheel and id map so that a misbehaving caller
// exhausting one controller's timer budget cannot starve another.
type Controller struct {
	label      Label
	maxTimers  int
	resolution time.Duration
	wheel      *Wheel
	ids        *idMap

	// activeCount tracks timers outstanding on this controller, bounded by
	// maxTimers: Start refuses a new timer once the budget is exhausted.
	activeCount atomic.Int32
}

// tryReserve claims one timer slot against the controller's budget,
// reporting false when maxTimers are already outstanding.
func (c *Controller) tryReserve() bool {
	for {
		cur := c.activeCount.Load()
		if c.maxTimers > 0 && int(cur) >= c.maxTimers {
			return false
		}
		if c.activeCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (c *Controller) release() { c.activeCount.Dec() }

// Label returns the controller's identity, stable for its lifetime between
// Acquire and Release.
func (c *Controller) Label() Label { return c.label }

// ControllerPool hands out Controller objects from a free list guarded by
// one mutex, matching the shared-resource policy of a single global pool
// rather than per-controller allocation churn.
type ControllerPool struct {
	mu   sync.Mutex
	free []*Controller
}

// NewControllerPool creates an empty pool.
func NewControllerPool() *ControllerPool {
	return &ControllerPool{}
}

// Acquire returns a Controller allowing up to maxTimers outstanding timers,
// reusing a released slot when one is available. resolution is recorded on
// the controller; its wheel always uses the fixed levelSpecs geometry.
func (p *ControllerPool) Acquire(maxTimers int, resolution time.Duration, now int64) *Controller {
	p.mu.Lock()
	var c *Controller
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		c = &Controller{}
	}
	p.mu.Unlock()

	c.label = newLabel()
	c.maxTimers = maxTimers
	c.resolution = resolution
	c.wheel = NewWheel(now)
	idMapSize := 0
	for _, spec := range levelSpecs {
		idMapSize += spec.size
	}
	c.ids = newIDMap(idMapSize)
	c.activeCount.Store(0)
	return c
}

// Release zeros the controller's label and returns it to the free list for
// reuse. The caller must not use c after calling Release.
func (p *ControllerPool) Release(c *Controller) {
	c.label = Label{}
	c.wheel = nil
	c.ids = nil
	c.maxTimers = 0
	c.activeCount.Store(0)

	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
}
