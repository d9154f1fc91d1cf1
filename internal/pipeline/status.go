package pipeline

import "sync"

// statusEventMirror bounds the event mirror carried inside RunStatus.
const statusEventMirror = 50

// StatusBoard is the process-wide, mutex-guarded run status. The single
// orchestrator goroutine writes through it; any number of observers read
// snapshots concurrently. No field is touched without holding the lock, and
// readers only ever receive copies of internal containers.
type StatusBoard struct {
	mu     sync.Mutex
	status RunStatus
}

// NewStatusBoard returns an idle board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: RunStatus{Phase: PhaseIdle}}
}

// StatusPatch is a partial update merged into the board; nil fields are
// left unchanged.
type StatusPatch struct {
	Running        *bool
	Phase          *Phase
	Progress       *string
	Percent        *int
	ActiveStrategy *string
}

// Reset clears all fields and marks the board running for a fresh run.
func (b *StatusBoard) Reset(runID string, clock Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = RunStatus{
		RunID:     runID,
		Running:   true,
		Phase:     PhaseIdle,
		StartedAt: clock.Now(),
	}
}

// Update merges the non-nil fields of the patch under lock.
func (b *StatusBoard) Update(p StatusPatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Running != nil {
		b.status.Running = *p.Running
	}
	if p.Phase != nil {
		b.status.Phase = *p.Phase
	}
	if p.Progress != nil {
		b.status.Progress = *p.Progress
	}
	if p.Percent != nil {
		b.status.Percent = *p.Percent
	}
	if p.ActiveStrategy != nil {
		b.status.ActiveStrategy = *p.ActiveStrategy
	}
}

// AddStats folds a counter delta into the accumulated statistics.
func (b *StatusBoard) AddStats(d RunStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Stats.add(d)
}

// AddError appends one error message to the run's error list.
func (b *StatusBoard) AddError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Errors = append(b.status.Errors, msg)
}

// AppendEvent mirrors an event into the bounded status event list.
func (b *StatusBoard) AppendEvent(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Events = append(b.status.Events, evt)
	if len(b.status.Events) > statusEventMirror {
		b.status.Events = b.status.Events[len(b.status.Events)-statusEventMirror:]
	}
}

// SetPendingRetries replaces the pending retry id list with a copy.
func (b *StatusBoard) SetPendingRetries(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.PendingRetries = append([]string(nil), ids...)
}

// RequestStop raises the cooperative stop flag. The orchestrator honors it
// at the next unit-of-work boundary.
func (b *StatusBoard) RequestStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.StopRequested = true
}

// StopRequested reads the stop flag under lock.
func (b *StatusBoard) StopRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.StopRequested
}

// Running reports whether a run is in progress.
func (b *StatusBoard) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Running
}

// finish marks the run terminal: not running, stop flag cleared for the
// next run, terminal phase and finish time recorded.
func (b *StatusBoard) finish(terminal Phase, clock Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Running = false
	b.status.StopRequested = false
	b.status.Phase = terminal
	b.status.FinishedAt = clock.Now()
}

// Snapshot returns a deep, independent copy safe to hand to any observer.
func (b *StatusBoard) Snapshot() RunStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.status
	out.Errors = append([]string(nil), b.status.Errors...)
	out.PendingRetries = append([]string(nil), b.status.PendingRetries...)
	out.Events = copyEvents(b.status.Events)
	return out
}

func copyEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, evt := range events {
		out[i] = copyEvent(evt)
	}
	return out
}

func copyEvent(evt Event) Event {
	out := evt
	if evt.Details != nil {
		out.Details = make(map[string]string, len(evt.Details))
		for k, v := range evt.Details {
			out.Details[k] = v
		}
	}
	return out
}
