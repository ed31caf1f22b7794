package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWheelPickLevelPicksSmallestSpanThatExceedsDelay(t *testing.T) {
	w := NewWheel(0)
	assert.Equal(t, 0, w.pickLevel(10))
	assert.Equal(t, 0, w.pickLevel(levelSpecs[0].resolution*int64(levelSpecs[0].size)-1))
	assert.Equal(t, 1, w.pickLevel(levelSpecs[0].resolution*int64(levelSpecs[0].size)+1))
	assert.Equal(t, 2, w.pickLevel(levelSpecs[1].resolution*int64(levelSpecs[1].size)+1))
	// Span exceeding every level's reach clamps to the coarsest level.
	assert.Equal(t, 2, w.pickLevel(levelSpecs[2].resolution*int64(levelSpecs[2].size)*100))
}

func TestWheelPlaceThenTickNeverFiresEarly(t *testing.T) {
	now := int64(1_000_000)
	w := NewWheel(now)
	tmr := &Timer{id: 1, wheelIdx: notInWheel}
	w.place(tmr, now, 250)

	// Ticking up to just before the expected expiry must not surface it.
	var fired []*Timer
	for ms := now; ms < tmr.expireAt; ms += MillisPerTick {
		fired = append(fired, w.tick(ms)...)
	}
	assert.Empty(t, fired)

	fired = w.tick(tmr.expireAt + MillisPerTick)
	require.Len(t, fired, 1)
	assert.Equal(t, tmr.id, fired[0].id)
}

func TestWheelRemoveBeforeExpiryPreventsFiring(t *testing.T) {
	now := int64(0)
	w := NewWheel(now)
	tmr := &Timer{id: 7, wheelIdx: notInWheel}
	w.place(tmr, now, 500)
	w.remove(tmr)
	assert.Equal(t, notInWheel, tmr.wheelIdx)

	fired := w.tick(now + 10_000)
	assert.Empty(t, fired)
}

func TestWheelTickLeavesLaterTimersInSlot(t *testing.T) {
	now := int64(0)
	w := NewWheel(now)
	soon := &Timer{id: 1, wheelIdx: notInWheel}
	later := &Timer{id: 2, wheelIdx: notInWheel}
	w.place(soon, now, 100)
	w.place(later, now, 100*levelSpecs[0].size) // forced onto level 1 or later

	fired := w.tick(now + 100 + MillisPerTick)
	ids := make([]uint64, 0, len(fired))
	for _, f := range fired {
		ids = append(ids, f.id)
	}
	assert.Contains(t, ids, soon.id)
	assert.NotContains(t, ids, later.id)
}
