package quota_test

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/disjukr/memquota/quota"
)

func gatherMetrics(t *testing.T, r *quota.Registry) map[string]map[string]float64 {
	t.Helper()

	promRegistry := prometheus.NewPedanticRegistry()
	require.NoError(t, promRegistry.Register(quota.NewMetricsCollector(r)))

	families, err := promRegistry.Gather()
	require.NoError(t, err)

	values := make(map[string]map[string]float64)
	for _, family := range families {
		byLabels := make(map[string]float64)
		for _, metric := range family.GetMetric() {
			key := ""
			for _, label := range metric.GetLabel() {
				if key != "" {
					key += ","
				}
				key += label.GetName() + "=" + label.GetValue()
			}
			byLabels[key] = metricValue(metric)
		}
		values[family.GetName()] = byLabels
	}
	return values
}

func metricValue(metric *dto.Metric) float64 {
	if metric.GetGauge() != nil {
		return metric.GetGauge().GetValue()
	}
	return metric.GetCounter().GetValue()
}

func TestMetricsCollectorExportsQuotaState(t *testing.T) {
	r := quota.NewRegistry(quota.RegistryOptions{})
	qh := r.CreateNamedQuota("transport", 1000)
	oh, err := r.CreateOwner(qh)
	require.NoError(t, err)
	_, err = r.MakeReservation(oh, 250, 250)
	require.NoError(t, err)

	values := gatherMetrics(t, r)

	require.Equal(t, 1000.0, values["memquota_limit_bytes"]["quota=transport"])
	require.Equal(t, 250.0, values["memquota_used_bytes"]["quota=transport"])
	require.Equal(t, float64(quota.StateNormal), values["memquota_reclaim_state"]["quota=transport"])
	require.Equal(t, 1.0, values["memquota_owners"]["quota=transport"])
	require.Equal(t, 0.0, values["memquota_sweeps_total"]["pass=PassBenign,quota=transport"])
}

func TestMetricsCollectorUnlimitedQuotaReportsInf(t *testing.T) {
	r := quota.NewRegistry(quota.RegistryOptions{})
	r.CreateNamedQuota("unbounded", 0)

	values := gatherMetrics(t, r)
	require.True(t, math.IsInf(values["memquota_limit_bytes"]["quota=unbounded"], 1))
}

func TestMetricsCollectorCountsSweeps(t *testing.T) {
	r := quota.NewRegistry(quota.RegistryOptions{})
	qh := r.CreateNamedQuota("calls", 100)
	oh, err := r.CreateOwner(qh)
	require.NoError(t, err)

	require.NoError(t, r.PostReclaimer(oh, quota.PassBenign, func(sweep *quota.ReclamationSweep) {
		sweep.Finish()
	}))

	_, err = r.MakeReservation(oh, 500, 500)
	require.NoError(t, err)
	r.Scheduler().Drain()

	values := gatherMetrics(t, r)

	require.Equal(t, 1.0, values["memquota_sweeps_total"]["pass=PassBenign,quota=calls"])
	require.Equal(t, float64(quota.StateExhausted), values["memquota_reclaim_state"]["quota=calls"])
}
