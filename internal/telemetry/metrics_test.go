package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/typerace/internal/telemetry"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				got[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	return got
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.ObserveEvent("userJoined", "ok")
	m.ObserveEvent("startTest", "invalid")
	m.SetConnectedUsers(3)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.DeliveryDropped("testStarted")
	m.ObserveStore("insert", time.Now(), nil)
	m.ObserveStore("insert", time.Now(), errors.New("boom"))

	assert.Equal(t, map[string]float64{
		"typerace_events_total":             2,
		"typerace_connected_users":          3,
		"typerace_ws_connections":           1,
		"typerace_deliveries_dropped_total": 1,
		"typerace_store_duration_seconds":   2,
	}, gather(t, reg))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics

	assert.NotPanics(t, func() {
		m.ObserveEvent("userJoined", "ok")
		m.SetConnectedUsers(1)
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.DeliveryDropped("error")
		m.ObserveStore("delete", time.Now(), nil)
	})
}
