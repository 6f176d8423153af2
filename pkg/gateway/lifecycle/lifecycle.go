package lifecycle

import "sync/atomic"

// Lifecycle holds process state shared across handlers. While draining,
// readiness fails and new live sessions are refused.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
