package timer

import (
	"sync"

	"go.uber.org/atomic"
)

// levelSpec describes one wheel level's geometry; sizes and resolutions are
// fixed at three levels of increasingly coarse granularity so a timer due
// in an hour isn't rescanned every tick.
type levelSpec struct {
	size       int
	resolution int64 // ms
}

var levelSpecs = [3]levelSpec{
	{size: 4096, resolution: MillisPerTick},
	{size: 1024, resolution: 1000},
	{size: 1024, resolution: 60000},
}

type level struct {
	spec       levelSpec
	mu         sync.Mutex
	index      int64
	slots      []*Timer // intrusive doubly-linked list head per slot
	nextScanAt atomic.Int64
}

func newLevel(spec levelSpec, now int64) *level {
	l := &level{spec: spec, slots: make([]*Timer, spec.size)}
	l.nextScanAt.Store(now + spec.resolution)
	return l
}

func (l *level) insert(slot int, t *Timer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.slot = slot
	t.next = l.slots[slot]
	t.prev = nil
	if t.next != nil {
		t.next.prev = t
	}
	l.slots[slot] = t
}

// unlink removes t from its slot's list. Caller must know t currently
// belongs to this level (t.wheelIdx matches).
func (l *level) unlink(t *Timer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlinkLocked(t)
}

func (l *level) unlinkLocked(t *Timer) {
	if t.prev != nil {
		t.prev.next = t.next
	} else if l.slots[t.slot] == t {
		l.slots[t.slot] = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	t.prev, t.next = nil, nil
}

// advance moves the level's index forward by one slot and splices out
// every timer in that slot whose expireAt has arrived, returning them as a
// plain slice (their intrusive links cleared) for the caller to dispatch.
// Timers in the slot not yet due stay put for a later pass.
func (l *level) advance(now int64) []*Timer {
	l.mu.Lock()
	l.index = (l.index + 1) % int64(l.spec.size)
	idx := l.index
	var expired []*Timer
	cur := l.slots[idx]
	for cur != nil {
		next := cur.next
		if cur.expireAt <= now {
			l.unlinkLocked(cur)
			cur.wheelIdx = notInWheel
			expired = append(expired, cur)
		}
		cur = next
	}
	l.mu.Unlock()
	return expired
}

// Wheel is the full 3-level hierarchy a Controller schedules timers on.
type Wheel struct {
	levels [len(levelSpecs)]*level
}

// NewWheel builds a wheel whose levels' nextScanAt are anchored at now.
func NewWheel(now int64) *Wheel {
	w := &Wheel{}
	for i, spec := range levelSpecs {
		w.levels[i] = newLevel(spec, now)
	}
	return w
}

// pickLevel returns the lowest-index level whose resolution*size strictly
// exceeds delayMs, defaulting to the coarsest level when delay exceeds
// every level's span.
func (w *Wheel) pickLevel(delayMs int64) int {
	for i, spec := range levelSpecs {
		if spec.resolution*int64(spec.size) > delayMs {
			return i
		}
	}
	return len(levelSpecs) - 1
}

// place computes the slot for t given the current index and next scan time
// at its chosen level and delayMs, and links t into that slot. now is the
// absolute time the placement decision is made at.
func (w *Wheel) place(t *Timer, now, delayMs int64) {
	li := w.pickLevel(delayMs)
	lvl := w.levels[li]

	t.expireAt = now + delayMs
	t.wheelIdx = li

	lvl.mu.Lock()
	// Slot index+1 is scanned at nextScanAt and each later slot one
	// resolution after the one before it: take the first slot whose scan
	// comes at or after expireAt, since a slot scanned earlier would keep t
	// for a whole rotation of the level.
	ticks := int64(1)
	if wait := t.expireAt - lvl.nextScanAt.Load(); wait > 0 {
		ticks += wait / lvl.spec.resolution
		if wait%lvl.spec.resolution != 0 {
			ticks++
		}
	}
	slot := int((lvl.index + ticks) % int64(lvl.spec.size))
	lvl.mu.Unlock()

	lvl.insert(slot, t)
}

// remove unlinks t from whichever level it currently sits on. No-op if t
// was never placed (notInWheel) or already removed.
func (w *Wheel) remove(t *Timer) {
	if t.wheelIdx == notInWheel {
		return
	}
	w.levels[t.wheelIdx].unlink(t)
	t.wheelIdx = notInWheel
}

// tick advances every level whose nextScanAt has arrived, returning all
// timers that expired across every level this call, oldest-resolution
// level first.
func (w *Wheel) tick(now int64) []*Timer {
	var expired []*Timer
	for _, lvl := range w.levels {
		for now >= lvl.nextScanAt.Load() {
			expired = append(expired, lvl.advance(now)...)
			lvl.nextScanAt.Add(lvl.spec.resolution)
		}
	}
	return expired
}
