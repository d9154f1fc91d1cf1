package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestStatusBoardPatchMergesOnlySetFields(t *testing.T) {
	t.Parallel()

	board := NewStatusBoard()
	board.Reset("run-1", fixedClock{t: time.Unix(1700000000, 0)})

	phase := PhaseCrawling
	percent := 10
	board.Update(StatusPatch{Phase: &phase, Percent: &percent})

	progress := "crawling hca/2024"
	board.Update(StatusPatch{Progress: &progress})

	snap := board.Snapshot()
	require.Equal(t, "run-1", snap.RunID)
	require.True(t, snap.Running)
	require.Equal(t, PhaseCrawling, snap.Phase)
	require.Equal(t, 10, snap.Percent)
	require.Equal(t, "crawling hca/2024", snap.Progress)
}

func TestStatusBoardSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	board := NewStatusBoard()
	board.Reset("run-1", fixedClock{t: time.Unix(1700000000, 0)})
	board.AddError("first")
	board.AppendEvent(Event{Category: "crawl_summary", Details: map[string]string{"source": "hca"}})
	board.SetPendingRetries([]string{"abc"})

	snap := board.Snapshot()
	snap.Errors[0] = "mutated"
	snap.Events[0].Details["source"] = "mutated"
	snap.PendingRetries[0] = "mutated"

	fresh := board.Snapshot()
	require.Equal(t, "first", fresh.Errors[0])
	require.Equal(t, "hca", fresh.Events[0].Details["source"])
	require.Equal(t, "abc", fresh.PendingRetries[0])
}

func TestStatusBoardEventMirrorIsBounded(t *testing.T) {
	t.Parallel()

	board := NewStatusBoard()
	for i := 0; i < statusEventMirror+20; i++ {
		board.AppendEvent(Event{Message: fmt.Sprintf("event %d", i)})
	}
	snap := board.Snapshot()
	require.Len(t, snap.Events, statusEventMirror)
	require.Equal(t, "event 20", snap.Events[0].Message)
}

func TestStatusBoardFinishClearsStopFlag(t *testing.T) {
	t.Parallel()

	clock := fixedClock{t: time.Unix(1700000000, 0)}
	board := NewStatusBoard()
	board.Reset("run-1", clock)
	board.RequestStop()
	require.True(t, board.StopRequested())

	board.finish(PhaseStopped, clock)
	snap := board.Snapshot()
	require.False(t, snap.Running)
	require.False(t, snap.StopRequested)
	require.Equal(t, PhaseStopped, snap.Phase)
	require.Equal(t, clock.t, snap.FinishedAt)
}

func TestStatusBoardResetClearsPreviousRun(t *testing.T) {
	t.Parallel()

	clock := fixedClock{t: time.Unix(1700000000, 0)}
	board := NewStatusBoard()
	board.Reset("run-1", clock)
	board.AddStats(RunStats{Found: 5, Downloaded: 3})
	board.AddError("boom")
	board.finish(PhaseFailed, clock)

	board.Reset("run-2", clock)
	snap := board.Snapshot()
	require.Equal(t, "run-2", snap.RunID)
	require.True(t, snap.Running)
	require.Equal(t, PhaseIdle, snap.Phase)
	require.Zero(t, snap.Stats.Found)
	require.Empty(t, snap.Errors)
	require.True(t, snap.FinishedAt.IsZero())
}

func TestRunStatsAdd(t *testing.T) {
	t.Parallel()

	var stats RunStats
	stats.add(RunStats{Found: 2, Added: 1})
	stats.add(RunStats{Found: 3, Downloaded: 2, Retried: 1})
	require.Equal(t, 5, stats.Found)
	require.Equal(t, 1, stats.Added)
	require.Equal(t, 2, stats.Downloaded)
	require.Equal(t, 1, stats.Retried)
}
