package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"LedgerCallsTotal", LedgerCallsTotal},
		{"LedgerRateLimitWaits", LedgerRateLimitWaits},
		{"ConfirmationLatency", ConfirmationLatency},
		{"CatalogRefreshesTotal", CatalogRefreshesTotal},
		{"CatalogRefreshLatency", CatalogRefreshLatency},
		{"CatalogNames", CatalogNames},
		{"RegistrationsTotal", RegistrationsTotal},
		{"RecordUpdatesTotal", RecordUpdatesTotal},
		{"SessionResetsTotal", SessionResetsTotal},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestMetrics_CounterIncrement(t *testing.T) {
	before := testutil.ToFloat64(RegistrationsTotal.WithLabelValues("test"))
	RegistrationsTotal.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RegistrationsTotal.WithLabelValues("test")))

	assert.NotPanics(t, func() { LedgerCallsTotal.WithLabelValues("getAllNames", "ok").Inc() })
	assert.NotPanics(t, func() { ConfirmationLatency.WithLabelValues("register").Observe(1.5) })
	assert.NotPanics(t, func() { CatalogNames.Set(3) })
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}
