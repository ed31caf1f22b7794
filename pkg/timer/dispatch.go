package timer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsengine/aggwheel/pkg/queue"
)

// dispatchQueue is the concurrency-safe wrapper a worker pool blocks on:
// queue.TreeQueue itself assumes single-threaded access, so every
// push/pop here is guarded by one mutex, with a condition variable so idle
// workers park instead of spinning when nothing is expired yet.
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tree   *queue.TreeQueue
	closed bool
	depth  int
	gauge  prometheus.Gauge
}

func newDispatchQueue(gauge prometheus.Gauge) *dispatchQueue {
	d := &dispatchQueue{tree: queue.NewTreeQueue("expired"), gauge: gauge}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// push enqueues v under path, e.g. the firing controller's label, so the
// tree's round-robin keeps one noisy controller from starving the rest.
func (d *dispatchQueue) push(path []string, v any) {
	d.mu.Lock()
	d.tree.Enqueue(path, v)
	d.depth++
	d.gauge.Set(float64(d.depth))
	d.cond.Signal()
	d.mu.Unlock()
}

// pop blocks until an item is available or the queue is closed, in which
// case it returns (nil, false) once fully drained.
func (d *dispatchQueue) pop() (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if v := d.tree.Dequeue(); v != nil {
			d.depth--
			d.gauge.Set(float64(d.depth))
			return v, true
		}
		if d.closed {
			return nil, false
		}
		d.cond.Wait()
	}
}

func (d *dispatchQueue) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}
