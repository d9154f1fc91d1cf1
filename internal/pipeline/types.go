package pipeline

import "time"

// Phase names the orchestrator's state machine states.
type Phase string

// Phases of a run. Stopped and Failed are terminal alternatives reachable
// from any running phase.
const (
	PhaseIdle        Phase = "idle"
	PhaseCrawling    Phase = "crawling"
	PhaseCleaning    Phase = "cleaning"
	PhaseDownloading Phase = "downloading"
	PhaseComplete    Phase = "complete"
	PhaseStopped     Phase = "stopped"
	PhaseFailed      Phase = "failed"
)

// Severity grades event log entries.
type Severity string

// Supported event severities.
const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Event is one immutable entry in the run's event log.
type Event struct {
	TS       time.Time `json:"ts"`
	Phase    Phase     `json:"phase"`
	Severity Severity  `json:"severity"`
	// Category is a machine-readable tag, e.g. "strategy_switch" or "http_timeout".
	Category string            `json:"category"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

// RunStats accumulates per-phase counters over one run.
type RunStats struct {
	Found             int `json:"found"`
	Added             int `json:"added"`
	YearsFixed        int `json:"years_fixed"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	Downloaded        int `json:"downloaded"`
	Failed            int `json:"failed"`
	Retried           int `json:"retried"`
}

// add merges another stats delta into s.
func (s *RunStats) add(d RunStats) {
	s.Found += d.Found
	s.Added += d.Added
	s.YearsFixed += d.YearsFixed
	s.DuplicatesRemoved += d.DuplicatesRemoved
	s.Downloaded += d.Downloaded
	s.Failed += d.Failed
	s.Retried += d.Retried
}

// RunStatus is the full, copyable view of a run exposed to observers.
type RunStatus struct {
	RunID          string    `json:"run_id"`
	Running        bool      `json:"running"`
	Phase          Phase     `json:"phase"`
	Progress       string    `json:"progress"`
	Percent        int       `json:"percent"`
	Stats          RunStats  `json:"stats"`
	Errors         []string  `json:"errors,omitempty"`
	Events         []Event   `json:"events,omitempty"`
	PendingRetries []string  `json:"pending_retries,omitempty"`
	ActiveStrategy string    `json:"active_strategy,omitempty"`
	StopRequested  bool      `json:"stop_requested"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
}
