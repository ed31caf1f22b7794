// Package timer implements a hierarchical timer wheel: three wheel levels
// of increasingly coarse resolution, a sharded id map for O(1) lookup by
// timer id, and a worker pool that fans expired timers out fairly across
// controllers via a tree-shaped dispatch queue.
package timer

import (
	"context"

	"go.uber.org/atomic"
)

// MillisPerTick is the cadence of the wheel's lowest level.
const MillisPerTick int64 = 100

const notInWheel = -1

// state is the one-way timer state machine: waiting -> {canceled, expired},
// expired -> stopped. It is stored as a lock-free CAS variable so the tick
// thread and a concurrent Stop/Reset call never need a mutex to agree on
// who owns the transition.
type state uint32

const (
	stateWaiting state = iota
	stateExpired
	stateStopped
	stateCanceled
)

// Callback is invoked when a timer fires. ctx carries a marker that lets
// the callback call Service.Stop or Service.Reset on its own timer id
// without the spin-wait a foreign caller would otherwise have to do (see
// isSelfStop).
type Callback func(ctx context.Context, id uint64, userData any)

// Timer is one scheduled callback. It is always reachable from exactly one
// of: a wheel slot, the expired-dispatch queue, or neither (already fired
// and fully retired).
type Timer struct {
	id         uint64
	label      Label
	controller *Controller
	state      atomic.Uint32
	refCount   atomic.Int32

	expireAt int64 // absolute unix milliseconds
	wheelIdx int    // index into Wheel.levels, notInWheel if not placed
	slot     int

	callback Callback
	userData any

	prev, next *Timer // intrusive doubly-linked list within a wheel slot
	bucketNext *Timer // intrusive singly-linked list within an id-map bucket
}

// ID returns the timer's monotonically assigned id.
func (t *Timer) ID() uint64 { return t.id }

func (t *Timer) loadState() state { return state(t.state.Load()) }

func (t *Timer) casState(from, to state) bool {
	return t.state.CompareAndSwap(uint32(from), uint32(to))
}

type selfStopKey struct{}

// withSelf returns a context a callback can pass back into Service.Stop
// or Service.Reset to identify itself as the timer currently executing,
// so the call can complete synchronously instead of spin-waiting on its own
// completion.
func withSelf(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, selfStopKey{}, id)
}

func isSelfStop(ctx context.Context, id uint64) bool {
	v, ok := ctx.Value(selfStopKey{}).(uint64)
	return ok && v == id
}
