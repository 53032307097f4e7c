package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BusinessMetrics
	assert.NotPanics(t, func() {
		m.IdentityCreated()
		m.Claim("accepted")
		m.DroptipSettled("split", 2)
		m.GasSubsidy(1)
		m.SetReserveBalance(1)
		m.ObserveTransfer("escrow", time.Now())
	})
}

func TestBusinessMetricsRecord(t *testing.T) {
	m := NewBusinessMetrics(prometheus.NewRegistry())

	m.Claim("accepted")
	m.Claim("accepted")
	m.Claim("already_claimed")
	m.DroptipSettled("split", 1)
	m.GasSubsidy(21000)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClaimsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsTotal.WithLabelValues("already_claimed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroptipsSettledTotal.WithLabelValues("split")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayoutsFailedTotal))
	assert.Equal(t, 21000.0, testutil.ToFloat64(m.GasSubsidizedWei))
}
