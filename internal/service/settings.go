package service

import (
	"fmt"
	"sync"
)

// Settings holds the operator-tunable pipeline knobs. They can change at
// runtime through the config endpoint, so reads go through a lock.
type Settings struct {
	mu         sync.RWMutex
	threshold  float64
	autoAction bool
}

func NewSettings(threshold float64, autoAction bool) *Settings {
	return &Settings{threshold: threshold, autoAction: autoAction}
}

func (s *Settings) Snapshot() (threshold float64, autoAction bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold, s.autoAction
}

func (s *Settings) Update(threshold float64, autoAction bool) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in (0,1]", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	s.autoAction = autoAction
	return nil
}
