package scheduler

import (
	"container/heap"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClock_WaitUntilJumps(t *testing.T) {
	c := NewVirtualClock(epoch)

	require.NoError(t, c.WaitUntil(context.Background(), epoch.Add(time.Hour)))
	assert.Equal(t, epoch.Add(time.Hour), c.Now())

	// Never moves backwards.
	require.NoError(t, c.WaitUntil(context.Background(), epoch))
	assert.Equal(t, epoch.Add(time.Hour), c.Now())
}

func TestVirtualClock_CancelledContext(t *testing.T) {
	c := NewVirtualClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.WaitUntil(ctx, epoch.Add(time.Second)), context.Canceled)
	assert.Equal(t, epoch, c.Now())
}

func TestRealClock_PastDeadlineReturnsImmediately(t *testing.T) {
	var c RealClock
	assert.NoError(t, c.WaitUntil(context.Background(), time.Now().Add(-time.Second)))
}

func TestRealClock_ContextCancel(t *testing.T) {
	var c RealClock
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.WaitUntil(ctx, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClockFor(t *testing.T) {
	tests := []struct {
		mode    string
		virtual bool
		wantErr bool
	}{
		{"", false, false},
		{"real", false, false},
		{"REAL", false, false},
		{"virtual", true, false},
		{"sundial", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			c, err := ClockFor(tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, isVirtual := c.(*VirtualClock)
			assert.Equal(t, tt.virtual, isVirtual)
		})
	}
}

func TestTimerHeap_OrdersByWakeThenSequence(t *testing.T) {
	var h timerHeap
	push := func(name string, offset time.Duration, seq uint64) *timerEntry {
		e := &timerEntry{wake: epoch.Add(offset), seq: seq, task: &Task{name: name}}
		heap.Push(&h, e)
		return e
	}
	push("late", 3*time.Second, 1)
	push("tie-b", time.Second, 3)
	removed := push("gone", 2*time.Second, 4)
	push("tie-a", time.Second, 2)

	heap.Remove(&h, removed.index)
	assert.Equal(t, -1, removed.index)

	var order []string
	for h.Len() > 0 {
		order = append(order, heap.Pop(&h).(*timerEntry).task.name)
	}
	assert.Equal(t, []string{"tie-a", "tie-b", "late"}, order)
}

func TestVirtualClock_ForksAreIndependent(t *testing.T) {
	parent := NewVirtualClock(epoch)
	a := parent.Fork()
	b := parent.Fork()

	require.NoError(t, a.WaitUntil(context.Background(), epoch.Add(100*time.Second)))
	assert.Equal(t, epoch, b.Now())
	assert.Equal(t, epoch.Add(100*time.Second), parent.Now())

	require.NoError(t, b.WaitUntil(context.Background(), epoch.Add(time.Second)))
	assert.Equal(t, epoch.Add(time.Second), b.Now())
	assert.Equal(t, epoch.Add(100*time.Second), parent.Now())

	// A new fork starts at the latest time any run reached.
	assert.Equal(t, epoch.Add(100*time.Second), parent.Fork().Now())
}
