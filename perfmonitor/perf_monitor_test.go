package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	assert.NotNil(t, pm)
	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
}

func TestStop(t *testing.T) {
	t.Run("sets end time after start", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()

		assert.False(t, pm.endTime.IsZero())
		assert.False(t, pm.endTime.Before(pm.startTime))
	})

	t.Run("does nothing without start", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
	})
}

func TestElapsed(t *testing.T) {
	t.Run("zero until both instants are recorded", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		assert.Equal(t, time.Duration(0), pm.Elapsed())

		pm.Start()
		assert.Equal(t, time.Duration(0), pm.Elapsed())
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("measures the interval", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.Elapsed(), 20*time.Millisecond)
		assert.Greater(t, pm.ElapsedMilliseconds(), 15.0)
	})
}

func TestReset(t *testing.T) {
	pm := NewPerformanceMonitor()

	pm.Start()
	pm.Stop()
	pm.Reset()

	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
	assert.Equal(t, 0.0, pm.ElapsedMilliseconds())

	t.Run("stop after reset without start records nothing", func(t *testing.T) {
		pm.Stop()
		assert.True(t, pm.endTime.IsZero())
	})
}
