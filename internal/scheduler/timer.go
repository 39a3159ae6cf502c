package scheduler

import (
	"context"
	"time"
)

// timerEntry is a pending wake-up for a suspended task.
type timerEntry struct {
	wake  time.Time
	seq   uint64 // registration order, breaks ties between equal wake times
	task  *Task
	index int // position in the heap, maintained by timerHeap
}

// timerHeap implements heap.Interface for timer entries, ordered by wake time
// and then by registration order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].wake.Equal(h[j].wake) {
		return h[i].wake.Before(h[j].wake)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[0 : n-1]
	return e
}

// Sleep suspends the calling task for d and yields to the scheduler. It must
// be called with the context handed to a task's Func (or one derived from it).
//
// Sleep returns nil once d has elapsed on the run's clock, or an error matching
// model.ErrCancelled if the task was cancelled. A task that has already been
// told about its cancellation and tries to sleep again is unwound on the spot:
// its deferred functions run and it ends Cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := CurrentTask(ctx)
	if t == nil {
		return ErrNotInTask
	}
	if d < 0 {
		d = 0
	}
	return t.call(request{kind: reqSleep, delay: d})
}

// Now returns the current time of the run that owns ctx. Outside a task it
// falls back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t := CurrentTask(ctx); t != nil {
		return t.run.clock.Now()
	}
	return time.Now()
}
