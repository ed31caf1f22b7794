package timer

import (
	"go.uber.org/atomic"
)

// idMapBucket is one slot of the id map: a singly-linked list of timers
// guarded by a spin lock that additionally records which goroutine-local
// owner currently holds it, so a double-unlock shows up as an assertion
// failure instead of silent corruption.
type idMapBucket struct {
	locked atomic.Bool
	owner  atomic.Uint64
	head   *Timer
}

func (b *idMapBucket) lock(ownerID uint64) {
	for !b.locked.CompareAndSwap(false, true) {
		// spin; bucket hold times are a handful of pointer writes.
	}
	b.owner.Store(ownerID)
}

func (b *idMapBucket) unlock(ownerID uint64) {
	if b.owner.Load() != ownerID {
		panic("timer: idMapBucket unlocked by non-owner")
	}
	b.owner.Store(0)
	b.locked.Store(false)
}

// idMap is a fixed-size hash table mapping timer id -> *Timer, sized to the
// sum of all wheel level sizes per the wheel's own id-reuse-avoidance rule.
type idMap struct {
	buckets []idMapBucket
	nextID  atomic.Uint64
}

func newIDMap(size int) *idMap {
	if size < 1 {
		size = 1
	}
	return &idMap{buckets: make([]idMapBucket, size)}
}

// allocID returns the next monotonically increasing id, skipping 0 so it
// can be reserved as a null handle.
func (m *idMap) allocID() uint64 {
	id := m.nextID.Add(1)
	for id == 0 {
		id = m.nextID.Add(1)
	}
	return id
}

func (m *idMap) bucketFor(id uint64) *idMapBucket {
	return &m.buckets[id%uint64(len(m.buckets))]
}

// insert adds t to the bucket for t.id. callerID identifies the calling
// goroutine for the spin lock's owner assertion; any value unique to the
// caller for the duration of the critical section is sufficient.
func (m *idMap) insert(t *Timer, callerID uint64) {
	b := m.bucketFor(t.id)
	b.lock(callerID)
	t.bucketNext = b.head
	b.head = t
	b.unlock(callerID)
}

// remove unlinks t from its bucket, if still present. It is idempotent.
func (m *idMap) remove(t *Timer, callerID uint64) {
	b := m.bucketFor(t.id)
	b.lock(callerID)
	defer b.unlock(callerID)

	if b.head == t {
		b.head = t.bucketNext
		t.bucketNext = nil
		return
	}
	for cur := b.head; cur != nil; cur = cur.bucketNext {
		if cur.bucketNext == t {
			cur.bucketNext = t.bucketNext
			t.bucketNext = nil
			return
		}
	}
}

// lookup returns the timer registered under id, bumping its reference
// count so it cannot be freed out from under the caller, or nil if id is
// unknown (already fully retired).
func (m *idMap) lookup(id uint64, callerID uint64) *Timer {
	b := m.bucketFor(id)
	b.lock(callerID)
	defer b.unlock(callerID)

	for cur := b.head; cur != nil; cur = cur.bucketNext {
		if cur.id == id {
			cur.refCount.Inc()
			return cur
		}
	}
	return nil
}
