package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errIngest = errors.New("ingest refused")

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	}
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return errIngest })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	cb := New(testConfig())

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestSuccessResetsFailureRun(t *testing.T) {
	cb := New(testConfig())

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	require.NoError(t, succeed(cb))

	// Two more failures don't reach the threshold of three in a row.
	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOpensAtThresholdAndRejects(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}
	assert.Equal(t, StateOpen, cb.GetState())

	reached := false
	err := cb.Execute(context.Background(), func() error {
		reached = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open, request rejected")
	assert.False(t, reached)
}

func TestHalfOpenProbeAfterTimeout(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}

	time.Sleep(25 * time.Millisecond)

	// The first call after the timeout is admitted as a probe.
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	// A second success closes the breaker.
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}

	time.Sleep(25 * time.Millisecond)

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.GetState())

	// Reopening restarts the timeout; the next call is rejected.
	err := succeed(cb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request rejected")
}

func TestHalfOpenCapsConcurrentProbes(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}

	time.Sleep(25 * time.Millisecond)

	admitted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func() error {
			close(admitted)
			<-release
			return nil
		})
	}()

	<-admitted
	// One probe is in flight; the breaker admits no more.
	err := succeed(cb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is half-open, request rejected")

	close(release)
	require.NoError(t, <-done)
}

func TestCancelledContextRejectsWithoutRunning(t *testing.T) {
	cb := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reached := false
	err := cb.Execute(ctx, func() error {
		reached = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, reached)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateChangeCallbacks(t *testing.T) {
	cb := New(testConfig())

	type change struct{ from, to State }
	var changes []change
	cb.OnStateChange(func(from, to State) {
		changes = append(changes, change{from, to})
	})

	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}
	time.Sleep(25 * time.Millisecond)
	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestResetClosesOpenBreaker(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	require.NoError(t, succeed(cb))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
