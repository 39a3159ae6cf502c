package workload

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
	"github.com/me/corun/pkg/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestOrchestrator() (*orchestrator.Orchestrator, *scheduler.VirtualClock) {
	clock := scheduler.NewVirtualClock(epoch)
	return orchestrator.New(scheduler.New(clock, logging.Discard()), logging.Discard()), clock
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestMonitorDrill(t *testing.T) {
	o, clock := newTestOrchestrator()
	var out bytes.Buffer

	res, err := MonitorDrill(context.Background(), o, &out, 3*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "B", res.Value)
	assert.Equal(t, model.TaskStateCancelled, res.MonitorState)
	assert.Equal(t, []string{
		"A",
		"Elapsed: 0s",
		"still running",
		"Elapsed: 1s",
		"Elapsed: 2s",
		"B",
	}, lines(&out))
	assert.Equal(t, epoch.Add(3*time.Second), clock.Now())
}

func TestMonitorDrill_TenSeconds(t *testing.T) {
	o, clock := newTestOrchestrator()
	var out bytes.Buffer

	_, err := MonitorDrill(context.Background(), o, &out, 10*time.Second)

	require.NoError(t, err)
	got := lines(&out)
	assert.Equal(t, "B", got[len(got)-1])
	assert.Equal(t, "Elapsed: 9s", got[len(got)-2])
	assert.Equal(t, epoch.Add(10*time.Second), clock.Now())
}

func TestPitStop(t *testing.T) {
	o, clock := newTestOrchestrator()
	var out bytes.Buffer

	results, err := PitStop(context.Background(), o, &out)

	require.NoError(t, err)
	assert.Equal(t, []any{"tires", "fuel"}, results)
	assert.Equal(t, []string{
		"Removing the tire",
		"Refuelling",
		"Fitting and bolting the tire",
		"Tires changed",
		"Car refuelled",
	}, lines(&out))
	assert.Equal(t, epoch.Add(3*time.Second), clock.Now())
}

func TestUploads(t *testing.T) {
	o, clock := newTestOrchestrator()
	var out bytes.Buffer

	results, err := Uploads(context.Background(), o, &out)

	require.NoError(t, err)
	assert.Equal(t, []any{"photo", "video", "txt"}, results)
	assert.Equal(t, epoch.Add(6*time.Second), clock.Now())

	got := lines(&out)
	assert.Equal(t, []string{"Unpacking file", "Unpacking file", "Unpacking file"}, got[:3])
	assert.Contains(t, got, "Elapsed: 2s - txt")
	assert.Contains(t, got, "Elapsed: 4s - photo")
	assert.Equal(t, "Elapsed: 6s - video", got[len(got)-1])
}

func TestStopwatch_DefaultsTick(t *testing.T) {
	o, _ := newTestOrchestrator()
	var out bytes.Buffer

	res, err := o.RunPrimaryWithMonitor(context.Background(),
		orchestrator.Unit{Name: "wait", Func: func(ctx context.Context) (any, error) {
			return nil, scheduler.Sleep(ctx, 2*time.Second)
		}},
		Stopwatch(&out, "watch", 0),
	)

	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCancelled, res.MonitorState)
	assert.Equal(t, []string{"Elapsed: 0s", "Elapsed: 1s"}, lines(&out))
}
