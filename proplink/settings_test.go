package proplink

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestBackoffSchedule(t *testing.T) {
	s := DefaultClientSettings()
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equal(t, s.backoffFor(i), w)
	}
}

func TestBackoffCappedPastScheduleLength(t *testing.T) {
	s := DefaultClientSettings()
	last := s.backoffFor(len(s.ReconnectBackoff) - 1)
	assert.Equal(t, s.backoffFor(len(s.ReconnectBackoff)+10), last)
}

func TestBackoffCappedAt5000ms(t *testing.T) {
	s := DefaultClientSettings()
	s.ReconnectBackoff = []time.Duration{10 * time.Second}
	assert.Equal(t, s.backoffFor(0), 5000*time.Millisecond)
}

func TestDefaultServerSettingsWorkerPool(t *testing.T) {
	s := DefaultServerSettings()
	assert.Equal(t, s.WorkerPoolSize > 0, true)
}
