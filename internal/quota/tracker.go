package quota

import (
	"sync"

	"go.uber.org/zap"

	"prboard/internal/model"
)

// LowThreshold is the remaining-call count under which the budget is "low".
const LowThreshold = 100

// Observer is told about every recorded snapshot.
type Observer func(model.RateLimit)

// Tracker keeps the most recent rate-limit snapshot reported by the API.
// Each Record overwrites the previous one; no history is retained.
type Tracker struct {
	mu        sync.RWMutex
	last      model.RateLimit
	known     bool
	logger    *zap.Logger
	observers []Observer
}

func New(logger *zap.Logger, observers ...Observer) *Tracker {
	return &Tracker{logger: logger, observers: observers}
}

// Record stores rl as the current snapshot.
func (t *Tracker) Record(rl model.RateLimit) {
	t.mu.Lock()
	wasLow := t.known && t.last.Remaining < LowThreshold
	t.last = rl
	t.known = true
	t.mu.Unlock()

	if rl.Remaining < LowThreshold && !wasLow {
		t.logger.Warn("rate limit budget is low",
			zap.String("resource", rl.Resource),
			zap.Int("remaining", rl.Remaining),
			zap.Int("limit", rl.Limit),
			zap.Time("reset", rl.Reset),
		)
	}
	for _, o := range t.observers {
		o(rl)
	}
}

// Snapshot returns the last recorded budget and whether one exists.
func (t *Tracker) Snapshot() (model.RateLimit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.known
}

// Low reports whether the last snapshot is below LowThreshold.
// Before any call has completed the budget is not considered low.
func (t *Tracker) Low() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.known && t.last.Remaining < LowThreshold
}
