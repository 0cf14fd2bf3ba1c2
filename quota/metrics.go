package quota

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/disjukr/memquota/slotmap"
)

// MetricsCollector is a prometheus.Collector exporting per-quota budget, usage,
// reclamation state and cumulative sweep counts for every quota in a Registry.
// Registering it is optional; the core does not depend on it.
type MetricsCollector struct {
	registry *Registry

	limitDesc  *prometheus.Desc
	usedDesc   *prometheus.Desc
	stateDesc  *prometheus.Desc
	sweepsDesc *prometheus.Desc
	ownersDesc *prometheus.Desc
}

// NewMetricsCollector creates a collector over registry.
func NewMetricsCollector(registry *Registry) *MetricsCollector {
	return &MetricsCollector{
		registry: registry,
		limitDesc: prometheus.NewDesc(
			"memquota_limit_bytes",
			"Configured byte budget of the quota. Unlimited quotas report +Inf.",
			[]string{"quota"}, nil),
		usedDesc: prometheus.NewDesc(
			"memquota_used_bytes",
			"Bytes currently attributed to the quota.",
			[]string{"quota"}, nil),
		stateDesc: prometheus.NewDesc(
			"memquota_reclaim_state",
			"Reclamation state of the quota: 0 normal, 1-3 reclaiming benign/idle/destructive, 4 exhausted.",
			[]string{"quota"}, nil),
		sweepsDesc: prometheus.NewDesc(
			"memquota_sweeps_total",
			"Cumulative reclamation sweeps dispatched, by tier.",
			[]string{"quota", "pass"}, nil),
		ownersDesc: prometheus.NewDesc(
			"memquota_owners",
			"Owners currently bound to the quota.",
			[]string{"quota"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limitDesc
	ch <- c.usedDesc
	ch <- c.stateDesc
	ch <- c.sweepsDesc
	ch <- c.ownersDesc
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.registry.mutex.Lock()
	var quotas []*Quota
	c.registry.quotas.Iter(func(_ slotmap.Handle, q *Quota) bool {
		quotas = append(quotas, q)
		return false
	})
	c.registry.mutex.Unlock()

	for _, q := range quotas {
		limit := float64(q.Limit())
		if q.Limit() == UnlimitedSize {
			limit = math.Inf(1)
		}

		ch <- prometheus.MustNewConstMetric(c.limitDesc, prometheus.GaugeValue, limit, q.Name())
		ch <- prometheus.MustNewConstMetric(c.usedDesc, prometheus.GaugeValue, float64(q.Used()), q.Name())
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(q.State()), q.Name())
		ch <- prometheus.MustNewConstMetric(c.ownersDesc, prometheus.GaugeValue, float64(q.ownerCount()), q.Name())

		for pass := PassBenign; pass < ReclamationPassCount; pass++ {
			ch <- prometheus.MustNewConstMetric(c.sweepsDesc, prometheus.CounterValue,
				float64(q.SweepCount(pass)), q.Name(), pass.String())
		}
	}
}

func (q *Quota) ownerCount() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.owners.Count()
}
