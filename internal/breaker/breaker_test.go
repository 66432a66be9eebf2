package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		Window:           50 * time.Millisecond,
		Cooldown:         20 * time.Millisecond,
		MaxCooldown:      200 * time.Millisecond,
	}
}

func TestClosedToOpenAtThreshold(t *testing.T) {
	b := New(testConfig())
	require.True(t, b.Allow("acc-1"))

	b.RecordFailure("acc-1")
	b.RecordFailure("acc-1")
	require.Equal(t, Closed, b.State("acc-1"))
	require.True(t, b.Allow("acc-1"))

	b.RecordFailure("acc-1")
	require.Equal(t, Open, b.State("acc-1"))
	require.False(t, b.Allow("acc-1"))
}

func TestFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	b.RecordFailure("acc-2")
	time.Sleep(cfg.Window + 10*time.Millisecond)
	b.RecordFailure("acc-2")
	b.RecordFailure("acc-2")
	require.Equal(t, Closed, b.State("acc-2"))
}

func TestOpenTransitionsToHalfOpenAfterCooldown(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-3")
	}
	require.Equal(t, Open, b.State("acc-3"))
	require.False(t, b.Allow("acc-3"))

	time.Sleep(cfg.Cooldown + 10*time.Millisecond)
	require.True(t, b.Allow("acc-3"))
	require.Equal(t, HalfOpen, b.State("acc-3"))
}

func TestHalfOpenSingleProbeGate(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-4")
	}
	time.Sleep(cfg.Cooldown + 10*time.Millisecond)
	require.True(t, b.Allow("acc-4"))
	require.Equal(t, HalfOpen, b.State("acc-4"))

	// A second caller must not also get to probe while one is outstanding.
	require.False(t, b.Allow("acc-4"))
	require.True(t, b.IsOpen("acc-4"))
}

func TestHalfOpenSuccessClosesCircuit(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-5")
	}
	time.Sleep(cfg.Cooldown + 10*time.Millisecond)
	require.True(t, b.Allow("acc-5"))

	b.RecordSuccess("acc-5")
	require.Equal(t, Closed, b.State("acc-5"))
	require.True(t, b.Allow("acc-5"))
	require.False(t, b.IsOpen("acc-5"))
}

func TestHalfOpenFailureReopensWithDoubledCooldown(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-6")
	}
	time.Sleep(cfg.Cooldown + 10*time.Millisecond)
	require.True(t, b.Allow("acc-6"))

	b.RecordFailure("acc-6")
	require.Equal(t, Open, b.State("acc-6"))

	// Original cooldown has elapsed but the doubled one has not: still closed off.
	time.Sleep(cfg.Cooldown + 5*time.Millisecond)
	require.False(t, b.Allow("acc-6"))

	time.Sleep(cfg.Cooldown*2 + 10*time.Millisecond)
	require.True(t, b.Allow("acc-6"))
}

func TestCooldownDoublingIsCapped(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-7")
	}

	// Drive several HalfOpen->Open doubling cycles; cooldown must never
	// exceed MaxCooldown however many times it trips.
	for i := 0; i < 6; i++ {
		a, _ := b.accounts.Load("acc-7")
		acc := a.(*account)
		acc.mu.Lock()
		acc.until = time.Now().Add(-time.Millisecond)
		acc.state = Open
		acc.mu.Unlock()

		require.True(t, b.Allow("acc-7"))
		b.RecordFailure("acc-7")

		acc.mu.Lock()
		cd := acc.cooldown
		acc.mu.Unlock()
		require.LessOrEqual(t, cd, cfg.MaxCooldown)
	}
}

func TestIndependentAccountsDoNotShareState(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.RecordFailure("acc-8")
	}
	require.Equal(t, Open, b.State("acc-8"))
	require.Equal(t, Closed, b.State("acc-9"))
	require.True(t, b.Allow("acc-9"))
}
