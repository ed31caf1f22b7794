package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeQueueShapeAfterGetOrCreateChildQueue(t *testing.T) {
	expected := &TreeQueue{
		name:       "root",
		localQueue: []any{},
		currentIdx: -1,
		childQueueIndices: map[string]int{
			"0": 0,
			"1": 1,
			"2": 2,
		},
		childQueues: []*TreeQueue{
			{
				name:              "0",
				localQueue:        []any{},
				currentIdx:        -1,
				childQueueIndices: map[string]int{},
				childQueues:       []*TreeQueue{},
			},
			{
				name:       "1",
				localQueue: []any{},
				currentIdx: -1,
				childQueueIndices: map[string]int{
					"0": 0,
				},
				childQueues: []*TreeQueue{
					{
						name:              "0",
						localQueue:        []any{},
						currentIdx:        -1,
						childQueueIndices: map[string]int{},
						childQueues:       []*TreeQueue{},
					},
				},
			},
			{
				name:       "2",
				localQueue: []any{},
				currentIdx: -1,
				childQueueIndices: map[string]int{
					"0": 0,
					"1": 1,
				},
				childQueues: []*TreeQueue{
					{
						name:              "0",
						localQueue:        []any{},
						currentIdx:        -1,
						childQueueIndices: map[string]int{},
						childQueues:       []*TreeQueue{},
					},
					{
						name:              "1",
						localQueue:        []any{},
						currentIdx:        -1,
						childQueueIndices: map[string]int{},
						childQueues:       []*TreeQueue{},
					},
				},
			},
		},
	}

	root := NewTreeQueue("root")
	root.GetOrCreateChildQueue([]string{"0"})
	root.GetOrCreateChildQueue([]string{"1", "0"})
	root.GetOrCreateChildQueue([]string{"2", "0"})
	root.GetOrCreateChildQueue([]string{"2", "1"})

	assert.Equal(t, expected, root)
}

func TestTreeQueueDequeueIsBreadthFairAcrossLevels(t *testing.T) {
	root := NewTreeQueue("root")
	root.GetOrCreateChildQueue([]string{"0"})
	root.GetOrCreateChildQueue([]string{"1", "0"})
	root.GetOrCreateChildQueue([]string{"2", "0"})
	root.GetOrCreateChildQueue([]string{"2", "1"})

	root.Enqueue([]string{"0"}, "root:0:val0")
	root.Enqueue([]string{"1"}, "root:1:val0")
	root.Enqueue([]string{"1"}, "root:1:val1")
	root.Enqueue([]string{"2"}, "root:2:val0")
	root.Enqueue([]string{"1", "0"}, "root:1:0:val0")
	root.Enqueue([]string{"1", "0"}, "root:1:0:val1")
	root.Enqueue([]string{"2", "0"}, "root:2:0:val0")
	root.Enqueue([]string{"2", "0"}, "root:2:0:val1")
	root.Enqueue([]string{"2", "1"}, "root:2:1:val0")
	root.Enqueue([]string{"2", "1"}, "root:2:1:val1")
	root.Enqueue([]string{"2", "1"}, "root:2:1:val2")

	// No queue at a given level is dequeued from twice in a row unless every
	// other queue at that level is empty down to the leaf node.
	expected := []any{
		"root:0:val0", // root:0 localQueue is done
		"root:1:val0",
		"root:2:val0", // root:2 localQueue is done
		"root:1:0:val0",
		"root:2:0:val0",
		"root:1:val1",
		"root:2:1:val0",
		"root:1:0:val1", // root:1:0 localQueue is done; root:1 has nothing left either
		"root:2:0:val1", // root:2:0 localQueue is done
		"root:2:1:val1",
		"root:2:1:val2", // root:2:1 localQueue is done; root:2 has nothing left either
	}

	var got []any
	for {
		v := root.Dequeue()
		if v == nil {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, expected, got)
}

func TestTreeQueueLen(t *testing.T) {
	root := NewTreeQueue("root")
	root.Enqueue([]string{"a"}, 1)
	root.Enqueue([]string{"a", "b"}, 2)
	root.Enqueue([]string{"c"}, 3)
	assert.Equal(t, 3, root.Len())
	root.Dequeue()
	assert.Equal(t, 2, root.Len())
}
