// Package rebuild collects chunk rebuild requests from many producers and hands
// them to the renderer once per tick without duplicates.
package rebuild

import (
	"sort"
	"sync"

	"dynlights.ai/internal/sim/lighting/chunkpos"
)

type Queue struct {
	mu      sync.Mutex
	pending map[chunkpos.Pos]struct{}

	requested uint64
	drained   uint64
}

type Stats struct {
	Requested uint64 `json:"requested"`
	Drained   uint64 `json:"drained"`
	Pending   int    `json:"pending"`
}

func NewQueue() *Queue {
	return &Queue{pending: map[chunkpos.Pos]struct{}{}}
}

// ScheduleChunkRebuild accepts duplicate requests; each chunk is drained once.
func (q *Queue) ScheduleChunkRebuild(p chunkpos.Pos) {
	q.mu.Lock()
	q.pending[p] = struct{}{}
	q.requested++
	q.mu.Unlock()
}

// Drain returns the pending chunks ordered by chunkpos.Pos.Less and clears the queue.
func (q *Queue) Drain() []chunkpos.Pos {
	q.mu.Lock()
	out := make([]chunkpos.Pos, 0, len(q.pending))
	for p := range q.pending {
		out = append(out, p)
	}
	q.pending = make(map[chunkpos.Pos]struct{}, len(out))
	q.drained += uint64(len(out))
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Requested: q.requested, Drained: q.drained, Pending: len(q.pending)}
}
