package pipeline

import "sync"

// StrategyRotator tracks, per logical source, the currently selected
// strategy and its consecutive-failure count, rotating to the next strategy
// once failures reach the configured threshold.
type StrategyRotator struct {
	mu         sync.Mutex
	strategies []string
	autoRotate bool
	threshold  int
	states     map[string]*strategyState
}

// strategyState is created lazily the first time a source is processed.
type strategyState struct {
	index    int
	failures int
}

// NewStrategyRotator builds a rotator over the ordered strategy list.
func NewStrategyRotator(strategies []string, autoRotate bool, threshold int) *StrategyRotator {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &StrategyRotator{
		strategies: append([]string(nil), strategies...),
		autoRotate: autoRotate,
		threshold:  threshold,
		states:     make(map[string]*strategyState),
	}
}

// Current returns the strategy currently selected for the source.
func (r *StrategyRotator) Current(source string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.strategies) == 0 {
		return ""
	}
	return r.strategies[r.state(source).index]
}

// Count returns the number of strategies in the rotation.
func (r *StrategyRotator) Count() int {
	return len(r.strategies)
}

// RecordSuccess resets the source's consecutive-failure counter.
func (r *StrategyRotator) RecordSuccess(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(source).failures = 0
}

// RecordFailure increments the source's failure counter and, when
// auto-rotation is on and the threshold is reached, advances to the next
// strategy (wrapping) and resets the counter. It reports whether a rotation
// happened and the old/new strategy names.
func (r *StrategyRotator) RecordFailure(source string) (rotated bool, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(source)
	st.failures++
	if !r.autoRotate || st.failures < r.threshold || len(r.strategies) < 2 {
		return false, "", ""
	}
	from = r.strategies[st.index]
	st.index = (st.index + 1) % len(r.strategies)
	st.failures = 0
	to = r.strategies[st.index]
	return true, from, to
}

func (r *StrategyRotator) state(source string) *strategyState {
	st, ok := r.states[source]
	if !ok {
		st = &strategyState{}
		r.states[source] = st
	}
	return st
}
