package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobalConnectionLimiter(t *testing.T) {
	l := NewGlobalConnectionLimiter(2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire(), "third acquire should fail at capacity")

	l.Release()
	assert.True(t, l.Acquire(), "slot freed by release should be reusable")
	assert.Equal(t, int64(2), l.Current())
}

func TestIPConnectionLimiter(t *testing.T) {
	l := NewIPConnectionLimiter(2)

	assert.True(t, l.Acquire("10.0.0.1"))
	assert.True(t, l.Acquire("10.0.0.1"))
	assert.False(t, l.Acquire("10.0.0.1"), "third connection from same IP should fail")

	// A different IP is unaffected.
	assert.True(t, l.Acquire("10.0.0.2"))

	l.Release("10.0.0.1")
	assert.True(t, l.Acquire("10.0.0.1"))
	assert.Equal(t, 2, l.Count("10.0.0.1"))
}

func TestIPConnectionLimiter_ReleaseUnknownIP(t *testing.T) {
	l := NewIPConnectionLimiter(2)
	l.Release("10.0.0.1")
	assert.Equal(t, 0, l.Count("10.0.0.1"))
}

func TestConnectionRateLimiter(t *testing.T) {
	// Rate of 1/sec with burst 2: two immediate connections pass, the third
	// is throttled.
	l := NewConnectionRateLimiter(1, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// Fresh IPs get their own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestConnectionLimits_PerIPRejectionRollsBackGlobal(t *testing.T) {
	limits := NewConnectionLimits(10, 1, 100, 100)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// The rejected attempt must not leak a global slot.
	assert.Equal(t, int64(1), limits.global.Current())
}

func TestConnectionLimits_GlobalRejection(t *testing.T) {
	limits := NewConnectionLimits(1, 10, 100, 100)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.2")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
}

func TestConnectionLimits_RateRejection(t *testing.T) {
	limits := NewConnectionLimits(10, 10, 1, 1)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}
