package quarantine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Threshold401: 2,
		Threshold403: 1,
		Duration401:  30 * time.Millisecond,
		Duration403:  30 * time.Millisecond,
	}
}

func TestNotQuarantinedBelowThreshold(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-1", 401)
	require.False(t, m.IsQuarantined("acc-1"))
}

func TestQuarantinedAtThreshold(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-2", 401)
	m.RecordAuthFailure("acc-2", 401)
	require.True(t, m.IsQuarantined("acc-2"))
	require.Equal(t, "401 unauthorized", m.Reason("acc-2"))
}

func TestForbiddenTripsImmediatelyAtThresholdOne(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-3", 403)
	require.True(t, m.IsQuarantined("acc-3"))
	require.Equal(t, "403 forbidden", m.Reason("acc-3"))
}

func TestNonAuthStatusCodesAreIgnored(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-4", 429)
	m.RecordAuthFailure("acc-4", 500)
	require.False(t, m.IsQuarantined("acc-4"))
}

func TestQuarantineExpiresAfterDuration(t *testing.T) {
	cfg := testConfig()
	m := New(cfg)
	m.RecordAuthFailure("acc-5", 403)
	require.True(t, m.IsQuarantined("acc-5"))

	time.Sleep(cfg.Duration403 + 10*time.Millisecond)
	require.False(t, m.IsQuarantined("acc-5"))
	require.Equal(t, "", m.Reason("acc-5"))
}

func TestClearOnQuotaRefreshEndsQuarantineEarly(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-6", 403)
	require.True(t, m.IsQuarantined("acc-6"))

	m.ClearOnQuotaRefresh("acc-6")
	require.False(t, m.IsQuarantined("acc-6"))
}

func TestMarkSuccessResetsCountersWithoutLiftingActiveQuarantine(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-7", 403)
	require.True(t, m.IsQuarantined("acc-7"))

	m.MarkSuccess("acc-7")
	require.True(t, m.IsQuarantined("acc-7"), "an in-flight quarantine window is not lifted by a single success")
}

func TestIndependentAccounts(t *testing.T) {
	m := New(testConfig())
	m.RecordAuthFailure("acc-8", 403)
	require.True(t, m.IsQuarantined("acc-8"))
	require.False(t, m.IsQuarantined("acc-9"))
}
