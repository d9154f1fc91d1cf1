package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventLogAddStampsAndCopies(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil)
	details := map[string]string{"source": "hca"}
	evt := log.Add(PhaseCrawling, SeverityInfo, "crawl_summary", "found 3", details)

	require.False(t, evt.TS.IsZero())
	require.Equal(t, time.UTC, evt.TS.Location())

	// Mutating the caller's map must not leak into the log.
	details["source"] = "mutated"
	stored := log.Events("", "", 0)
	require.Len(t, stored, 1)
	require.Equal(t, "hca", stored[0].Details["source"])
}

func TestEventLogFilters(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil)
	log.Add(PhaseCrawling, SeverityInfo, "crawl_summary", "one", nil)
	log.Add(PhaseCrawling, SeverityError, "http_404", "two", nil)
	log.Add(PhaseDownloading, SeverityError, "http_5xx", "three", nil)

	require.Len(t, log.Events(PhaseCrawling, "", 0), 2)
	require.Len(t, log.Events("", SeverityError, 0), 2)
	require.Len(t, log.Events(PhaseDownloading, SeverityError, 0), 1)
	require.Empty(t, log.Events(PhaseCleaning, "", 0))
}

func TestEventLogLimitKeepsNewest(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil)
	log.Add(PhaseCrawling, SeverityInfo, "a", "first", nil)
	log.Add(PhaseCrawling, SeverityInfo, "b", "second", nil)
	log.Add(PhaseCrawling, SeverityInfo, "c", "third", nil)

	got := log.Events("", "", 2)
	require.Len(t, got, 2)
	require.Equal(t, "second", got[0].Message)
	require.Equal(t, "third", got[1].Message)
}

func TestEventLogErrorSummaryGroupsByCategory(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil)
	log.Add(PhaseCrawling, SeverityError, "http_404", "first 404", nil)
	log.Add(PhaseCrawling, SeverityError, "http_404", "second 404", nil)
	log.Add(PhaseDownloading, SeverityError, "http_timeout", "timed out", nil)
	log.Add(PhaseCrawling, SeverityWarn, "strategy_switch", "not an error", nil)

	summary := log.ErrorSummary()
	require.Len(t, summary, 2)
	require.Equal(t, 2, summary["http_404"].Count)
	require.Equal(t, "second 404", summary["http_404"].LastMessage)
	require.Equal(t, 1, summary["http_timeout"].Count)
}

func TestEventLogReset(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil)
	log.Add(PhaseCrawling, SeverityInfo, "a", "one", nil)
	log.Reset()
	require.Empty(t, log.Events("", "", 0))
	require.Empty(t, log.ErrorSummary())
}
