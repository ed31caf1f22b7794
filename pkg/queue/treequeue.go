// Package queue provides a hierarchical fair-dispatch queue: work items are
// enqueued along a path (e.g. super-table -> shard -> sub-table) and
// dequeued breadth-fair across every level of the tree, so one heavily
// loaded branch cannot starve its siblings. The timer service uses one of
// these to hand expired timers to its worker pool, keyed by controller
// label, without any single controller monopolizing the workers.
package queue

// TreeQueue is one node of the dispatch tree: items enqueued directly at
// this node live in localQueue, while childQueues holds one TreeQueue per
// immediate child path segment, indexed by childQueueIndices.
type TreeQueue struct {
	name              string
	localQueue        []any
	currentIdx        int
	childQueueIndices map[string]int
	childQueues       []*TreeQueue
}

// NewTreeQueue creates an empty root node with the given name.
func NewTreeQueue(name string) *TreeQueue {
	return &TreeQueue{
		name:              name,
		localQueue:        []any{},
		currentIdx:        -1,
		childQueueIndices: map[string]int{},
		childQueues:       []*TreeQueue{},
	}
}

// GetOrCreateChildQueue walks path from this node, creating any missing
// intermediate nodes, and returns the node at the end of path (or q itself
// if path is empty).
func (q *TreeQueue) GetOrCreateChildQueue(path []string) *TreeQueue {
	node := q
	for _, name := range path {
		idx, ok := node.childQueueIndices[name]
		if !ok {
			idx = len(node.childQueues)
			node.childQueueIndices[name] = idx
			node.childQueues = append(node.childQueues, NewTreeQueue(name))
		}
		node = node.childQueues[idx]
	}
	return node
}

// Enqueue appends v to the localQueue of the node at path, creating it if
// necessary.
func (q *TreeQueue) Enqueue(path []string, v any) {
	node := q.GetOrCreateChildQueue(path)
	node.localQueue = append(node.localQueue, v)
}

// Dequeue returns the next item in breadth-fair order: this node's own
// localQueue counts as one lane alongside each child subtree, and every
// call advances currentIdx to the lane after the one that last yielded a
// value, wrapping around. A lane that is empty (or, for a child, fully
// exhausted) is skipped without consuming a turn from any other lane.
// Returns nil once every lane under q is exhausted.
func (q *TreeQueue) Dequeue() any {
	total := len(q.childQueues) + 1
	for attempt := 0; attempt < total; attempt++ {
		pos := (q.currentIdx + 1) % total
		q.currentIdx = pos
		if pos == 0 {
			if len(q.localQueue) > 0 {
				v := q.localQueue[0]
				q.localQueue = q.localQueue[1:]
				return v
			}
			continue
		}
		if v := q.childQueues[pos-1].Dequeue(); v != nil {
			return v
		}
	}
	return nil
}

// Len reports the total number of items currently queued anywhere under q.
func (q *TreeQueue) Len() int {
	n := len(q.localQueue)
	for _, c := range q.childQueues {
		n += c.Len()
	}
	return n
}
