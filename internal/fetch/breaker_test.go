package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	assert.Equal(t, BreakerClosed, b.State())
	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.Allow())

	b.OnFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	// Interleaved success means failures were never consecutive enough.
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	current := time.Now()
	b.now = func() time.Time { return current }

	b.OnFailure()
	assert.False(t, b.Allow())

	// Cooldown elapses: one probe allowed.
	current = current.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Failed probe re-opens immediately.
	b.OnFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// A successful probe closes the circuit.
	current = current.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	b.OnSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}
