package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMapAllocIDSkipsZero(t *testing.T) {
	m := newIDMap(16)
	m.nextID.Store(^uint64(0)) // next Add(1) wraps to 0, must be skipped
	id := m.allocID()
	assert.NotEqual(t, uint64(0), id)
}

func TestIDMapInsertLookupRemove(t *testing.T) {
	m := newIDMap(4)
	tmr := &Timer{id: m.allocID()}
	m.insert(tmr, 1)

	found := m.lookup(tmr.id, 2)
	require.NotNil(t, found)
	assert.Equal(t, tmr.id, found.id)
	assert.Equal(t, int32(1), found.refCount.Load())

	m.remove(tmr, 3)
	assert.Nil(t, m.lookup(tmr.id, 4))
}

func TestIDMapBucketCollisionKeepsBothTimers(t *testing.T) {
	m := newIDMap(1) // force every id into the same bucket
	a := &Timer{id: m.allocID()}
	b := &Timer{id: m.allocID()}
	m.insert(a, 1)
	m.insert(b, 2)

	require.NotNil(t, m.lookup(a.id, 3))
	require.NotNil(t, m.lookup(b.id, 4))

	m.remove(a, 5)
	assert.Nil(t, m.lookup(a.id, 6))
	assert.NotNil(t, m.lookup(b.id, 7))
}

func TestIDMapLookupUnknownIDReturnsNil(t *testing.T) {
	m := newIDMap(4)
	assert.Nil(t, m.lookup(12345, 1))
}
