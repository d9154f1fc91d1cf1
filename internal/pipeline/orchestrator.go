package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencaselaw/harvester/internal/metrics"
)

// ErrAlreadyRunning is returned by Start when a run is already in progress;
// at most one run may be active process-wide.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// errStopped signals a cooperative stop honored inside a phase.
var errStopped = errors.New("stopped by user")

// Deps collects the orchestrator's collaborators. Board, Events, Listings,
// Documents, Records and Bodies are required; Clock and Logger default.
type Deps struct {
	Board     *StatusBoard
	Events    *EventLog
	Listings  ListingFetcher
	Documents DocumentFetcher
	Records   RecordStore
	Bodies    BodyStore
	Clock     Clock
	Logger    *zap.Logger
}

// Orchestrator sequences the crawl, clean and download phases on a single
// background goroutine, delegating strategy selection to a StrategyRotator
// and failure triage to the retry classifier. Callers poll the StatusBoard
// and EventLog; a stop request is honored within one unit of work.
type Orchestrator struct {
	board     *StatusBoard
	events    *EventLog
	listings  ListingFetcher
	documents DocumentFetcher
	records   RecordStore
	bodies    BodyStore
	clock     Clock
	logger    *zap.Logger
	pause     pauseController

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	// lastRequest is only touched by the run goroutine.
	lastRequest time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// New constructs an Orchestrator from its collaborators.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Board == nil || deps.Events == nil {
		return nil, fmt.Errorf("status board and event log are required")
	}
	if deps.Listings == nil || deps.Documents == nil {
		return nil, fmt.Errorf("listing and document fetchers are required")
	}
	if deps.Records == nil || deps.Bodies == nil {
		return nil, fmt.Errorf("record and body stores are required")
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()

	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		board:     deps.Board,
		events:    deps.Events,
		listings:  deps.Listings,
		documents: deps.Documents,
		records:   deps.Records,
		bodies:    deps.Bodies,
		clock:     deps.Clock,
		logger:    deps.Logger,
		pause:     &timerPauseController{},
		doneCh:    done,
	}, nil
}

// Start validates the configuration, resets run state and launches the run
// on its own goroutine, returning immediately. ErrAlreadyRunning is the
// only failure once a configuration validates.
func (o *Orchestrator) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid run configuration: %w", err)
	}
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	cfg = cfg.normalize()
	runID := uuid.NewString()
	o.board.Reset(runID, o.clock)
	o.events.Reset()
	o.lastRequest = time.Time{}
	rotator := NewStrategyRotator(cfg.Strategies, cfg.AutoRotate, cfg.FailureThreshold)

	o.logger.Info("run starting",
		zap.String("run_id", runID),
		zap.Strings("sources", cfg.Sources),
		zap.Int("year_start", cfg.YearStart),
		zap.Int("year_end", cfg.YearEnd),
	)
	go o.run(ctx, cfg, rotator)
	return nil
}

// RequestStop raises the cooperative stop flag. There is no hard interrupt
// of an in-flight request; the run ends at the next unit-of-work boundary.
func (o *Orchestrator) RequestStop() {
	o.board.RequestStop()
}

// Status returns a deep snapshot of the current run status.
func (o *Orchestrator) Status() RunStatus {
	return o.board.Snapshot()
}

// RecentEvents returns the last limit events matching the optional filters.
func (o *Orchestrator) RecentEvents(phase Phase, severity Severity, limit int) []Event {
	return o.events.Events(phase, severity, limit)
}

// ErrorSummary returns per-category error counts for the current run.
func (o *Orchestrator) ErrorSummary() map[string]CategorySummary {
	return o.events.ErrorSummary()
}

// Done returns a channel closed when the current run finishes. It returns
// an already-closed channel while idle.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doneCh
}

// run executes the phase state machine. Every failure path ends with a
// terminal board state; a panic anywhere is caught here so the caller
// always observes running=false, never a silent crash.
func (o *Orchestrator) run(ctx context.Context, cfg Config, rotator *StrategyRotator) {
	started := o.clock.Now()
	phase := PhaseIdle
	terminal := PhaseComplete

	defer func() {
		o.mu.Lock()
		o.running = false
		close(o.doneCh)
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("run aborted by panic: %v", r)
			o.event(phase, SeverityError, "fatal_error", msg, nil)
			terminal = PhaseFailed
		}
		o.board.finish(terminal, o.clock)
		metrics.ObserveRun(string(terminal), o.clock.Now().Sub(started))
		o.logger.Info("run finished",
			zap.String("terminal", string(terminal)),
			zap.Duration("elapsed", o.clock.Now().Sub(started)),
			zap.Any("error_summary", o.events.ErrorSummary()),
		)
	}()

	existing, err := o.records.LoadAll(ctx)
	if err != nil {
		o.fatal(phase, fmt.Errorf("load dataset: %w", err))
		terminal = PhaseFailed
		return
	}
	working := newRecordSet(existing)

	// Crawl.
	if o.stopRequested(phase) {
		terminal = PhaseStopped
		return
	}
	phase = PhaseCrawling
	o.enterPhase(phase, 5, fmt.Sprintf("crawling %d sources", len(cfg.Sources)))
	if err := o.crawlPhase(ctx, cfg, rotator, working); err != nil {
		terminal = o.phaseTerminal(phase, err)
		return
	}

	// Clean.
	if o.stopRequested(phase) {
		terminal = PhaseStopped
		return
	}
	phase = PhaseCleaning
	o.enterPhase(phase, 45, "cleaning dataset")
	cleaned, err := o.cleanPhase(ctx, cfg)
	if err != nil {
		terminal = o.phaseTerminal(phase, err)
		return
	}

	// Download.
	if cfg.Download {
		if o.stopRequested(phase) {
			terminal = PhaseStopped
			return
		}
		phase = PhaseDownloading
		o.enterPhase(phase, 55, "downloading document bodies")
		if err := o.downloadPhase(ctx, cfg, cleaned); err != nil {
			terminal = o.phaseTerminal(phase, err)
			return
		}
	}

	o.enterPhase(PhaseComplete, 100, "run complete")
	snap := o.board.Snapshot()
	o.event(PhaseComplete, SeveritySuccess, "run_complete",
		fmt.Sprintf("run complete: %d found, %d added, %d downloaded, %d failed",
			snap.Stats.Found, snap.Stats.Added, snap.Stats.Downloaded, snap.Stats.Failed), nil)
}

// enterPhase updates the board at a phase boundary.
func (o *Orchestrator) enterPhase(phase Phase, percent int, progress string) {
	o.board.Update(StatusPatch{Phase: &phase, Percent: &percent, Progress: &progress})
}

// stopRequested checks the cooperative flag and, when raised, records the
// stop event. Called before each phase and after each unit of work.
func (o *Orchestrator) stopRequested(phase Phase) bool {
	if !o.board.StopRequested() {
		return false
	}
	o.event(phase, SeverityWarn, "run_stopped", "stopped by user", nil)
	return true
}

// phaseTerminal maps a phase error to the terminal state, recording fatal
// errors along the way. errStopped is the only non-fatal phase error.
func (o *Orchestrator) phaseTerminal(phase Phase, err error) Phase {
	if errors.Is(err, errStopped) {
		return PhaseStopped
	}
	o.fatal(phase, err)
	return PhaseFailed
}

func (o *Orchestrator) fatal(phase Phase, err error) {
	o.event(phase, SeverityError, "fatal_error", err.Error(), nil)
}

// event appends to the run log and mirrors the entry into the bounded
// status event list.
func (o *Orchestrator) event(phase Phase, severity Severity, category, message string, details map[string]string) {
	evt := o.events.Add(phase, severity, category, message, details)
	o.board.AppendEvent(evt)
	if severity == SeverityError {
		o.board.AddError(message)
	}
}

// setProgress updates the human-readable progress string and percent from
// within a phase loop.
func (o *Orchestrator) setProgress(progress string, percent int) {
	o.board.Update(StatusPatch{Progress: &progress, Percent: &percent})
}

// throttle enforces the minimum inter-request delay; the only intentional
// blocking point besides the network call itself.
func (o *Orchestrator) throttle(ctx context.Context, delay time.Duration) {
	if wait := delay - o.clock.Now().Sub(o.lastRequest); wait > 0 {
		metrics.ObserveRequestDelay(wait)
		o.pause.Pause(ctx, wait)
	}
	o.lastRequest = o.clock.Now()
}
