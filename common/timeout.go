package common

import (
	"time"
)

// DefaultTimeout is the default bound on a frame wait.
const DefaultTimeout time.Duration = 30 * time.Second

// TimeoutSettings holds information on timeout settings.
type TimeoutSettings struct {
	parent         *TimeoutSettings
	defaultTimeout *time.Duration
}

// NewTimeoutSettings creates a new timeout settings object. Settings
// not set locally are inherited from the parent.
func NewTimeoutSettings(parent *TimeoutSettings) *TimeoutSettings {
	return &TimeoutSettings{
		parent: parent,
	}
}

// SetDefaultTimeout sets the default timeout used by frame waits. A
// zero timeout disables the bound entirely; waits then end only by
// resolution or caller cancellation.
func (t *TimeoutSettings) SetDefaultTimeout(timeout time.Duration) {
	t.defaultTimeout = &timeout
}

func (t *TimeoutSettings) timeout() time.Duration {
	if t == nil {
		return DefaultTimeout
	}
	if t.defaultTimeout != nil {
		return *t.defaultTimeout
	}
	if t.parent != nil {
		return t.parent.timeout()
	}
	return DefaultTimeout
}
