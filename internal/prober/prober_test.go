package prober

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectThresholdTable(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Strategy
	}{
		{0.0, None},
		{0.49, None},
		{0.5, CheapProbe},
		{0.79, CheapProbe},
		{0.8, DelayedHedge},
		{0.94, DelayedHedge},
		{0.95, ImmediateHedge},
		{1.2, ImmediateHedge},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Select(c.ratio), "ratio=%v", c.ratio)
	}
}

func TestImmediateHedgeReturnsFirstWinner(t *testing.T) {
	slow := Attempt[string]{AccountID: "slow", Run: func(ctx context.Context) (string, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "slow-result", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	fast := Attempt[string]{AccountID: "fast", Run: func(ctx context.Context) (string, error) {
		return "fast-result", nil
	}}

	res := Immediate(context.Background(), slow, fast)
	require.Equal(t, "fast", res.AccountID)
	require.Equal(t, "fast-result", res.Value)
	require.NoError(t, res.Err)
}

func TestDelayedHedgeDoesNotFireSecondLegBeforeDelay(t *testing.T) {
	var secondLegStarted bool
	primary := Attempt[int]{AccountID: "primary", Run: func(ctx context.Context) (int, error) {
		return 1, nil
	}}
	secondary := Attempt[int]{AccountID: "secondary", Run: func(ctx context.Context) (int, error) {
		secondLegStarted = true
		return 2, nil
	}}

	res := Delayed(context.Background(), 50*time.Millisecond, primary, secondary)
	require.Equal(t, "primary", res.AccountID)
	require.False(t, secondLegStarted, "secondary leg must not run once primary finishes inside the delay window")
}

func TestDelayedHedgeFiresSecondLegWhenPrimaryIsSlow(t *testing.T) {
	primary := Attempt[int]{AccountID: "primary", Run: func(ctx context.Context) (int, error) {
		select {
		case <-time.After(300 * time.Millisecond):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}}
	secondary := Attempt[int]{AccountID: "secondary", Run: func(ctx context.Context) (int, error) {
		return 2, nil
	}}

	res := Delayed(context.Background(), 30*time.Millisecond, primary, secondary)
	require.Equal(t, "secondary", res.AccountID)
	require.Equal(t, 2, res.Value)
}

func TestRacePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	a := Attempt[int]{AccountID: "a", Run: func(ctx context.Context) (int, error) {
		return 0, boom
	}}
	res := Immediate(context.Background(), a)
	require.ErrorIs(t, res.Err, boom)
}
