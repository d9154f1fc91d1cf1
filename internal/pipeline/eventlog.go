package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventLog is the append-only, thread-safe list of structured run events.
// Entries only grow during a run and are cleared at the next run's start.
// Each appended event is also forwarded, best effort, to the zap logger.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	logger *zap.Logger
	now    func() time.Time
}

// NewEventLog builds an EventLog forwarding to the given logger.
func NewEventLog(logger *zap.Logger) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{logger: logger, now: time.Now}
}

// Add appends one event stamped with the current time and returns a copy.
func (l *EventLog) Add(phase Phase, severity Severity, category, message string, details map[string]string) Event {
	evt := Event{
		TS:       l.now().UTC(),
		Phase:    phase,
		Severity: severity,
		Category: category,
		Message:  message,
	}
	if len(details) > 0 {
		evt.Details = make(map[string]string, len(details))
		for k, v := range details {
			evt.Details[k] = v
		}
	}

	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()

	l.forward(evt)
	return copyEvent(evt)
}

// Events returns the last limit events matching the filters, oldest first,
// as copies. Empty filter values match everything; limit <= 0 means all.
func (l *EventLog) Events(phase Phase, severity Severity, limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := make([]Event, 0, len(l.events))
	for _, evt := range l.events {
		if phase != "" && evt.Phase != phase {
			continue
		}
		if severity != "" && evt.Severity != severity {
			continue
		}
		matched = append(matched, evt)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return copyEvents(matched)
}

// CategorySummary describes the errors observed under one category.
type CategorySummary struct {
	Count       int    `json:"count"`
	LastMessage string `json:"last_message"`
}

// ErrorSummary returns, per distinct error category, the occurrence count
// and most recent message. Used for end-of-run diagnostics.
func (l *EventLog) ErrorSummary() map[string]CategorySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]CategorySummary)
	for _, evt := range l.events {
		if evt.Severity != SeverityError {
			continue
		}
		s := out[evt.Category]
		s.Count++
		s.LastMessage = evt.Message
		out[evt.Category] = s
	}
	return out
}

// Reset clears the log at the start of a new run.
func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *EventLog) forward(evt Event) {
	fields := make([]zap.Field, 0, 2+len(evt.Details))
	fields = append(fields, zap.String("phase", string(evt.Phase)), zap.String("category", evt.Category))
	for k, v := range evt.Details {
		fields = append(fields, zap.String(k, v))
	}
	switch evt.Severity {
	case SeverityError:
		l.logger.Error(evt.Message, fields...)
	case SeverityWarn:
		l.logger.Warn(evt.Message, fields...)
	case SeverityDebug:
		l.logger.Debug(evt.Message, fields...)
	default:
		l.logger.Info(evt.Message, fields...)
	}
}
