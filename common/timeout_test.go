package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutSettings(t *testing.T) {
	t.Parallel()

	t.Run("NewTimeoutSettings", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		assert.Nil(t, ts.parent)
		assert.Nil(t, ts.defaultTimeout)
	})

	t.Run("NewTimeoutSettings with parent", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		tsWithParent := NewTimeoutSettings(ts)
		assert.Equal(t, ts, tsWithParent.parent)
		assert.Nil(t, tsWithParent.defaultTimeout)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)

		// Assert default timeout value is used
		assert.Equal(t, DefaultTimeout, ts.timeout())

		// Assert custom default timeout is used
		ts.SetDefaultTimeout(100 * time.Millisecond)
		assert.Equal(t, 100*time.Millisecond, ts.timeout())

		// A zero timeout disables the bound
		ts.SetDefaultTimeout(0)
		assert.Equal(t, time.Duration(0), ts.timeout())
	})

	t.Run("timeout with parent", func(t *testing.T) {
		t.Parallel()

		parent := NewTimeoutSettings(nil)
		ts := NewTimeoutSettings(parent)

		parent.SetDefaultTimeout(1000 * time.Millisecond)
		assert.Equal(t, 1000*time.Millisecond, ts.timeout())

		ts.SetDefaultTimeout(100 * time.Millisecond)
		assert.Equal(t, 100*time.Millisecond, ts.timeout())
	})

	t.Run("nil receiver", func(t *testing.T) {
		t.Parallel()

		var ts *TimeoutSettings
		assert.Equal(t, DefaultTimeout, ts.timeout())
	})
}
