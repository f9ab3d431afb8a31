package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunDeadline_EmptyOrZeroIsUnbounded(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := runDeadline(start, "")
	assert.False(t, ok)

	_, ok = runDeadline(start, "0")
	assert.False(t, ok)
}

func TestRunDeadline_ParsesDurationRelativeToStart(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	deadline, ok := runDeadline(start, "30m")
	assert.True(t, ok)
	assert.Equal(t, start.Add(30*time.Minute), deadline)
}

func TestRunDeadline_InvalidDurationIsUnbounded(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := runDeadline(start, "not-a-duration")
	assert.False(t, ok)

	_, ok = runDeadline(start, "-5m")
	assert.False(t, ok)
}
