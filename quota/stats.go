package quota

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/disjukr/memquota/quotautils"
	"github.com/disjukr/memquota/slotmap"
)

// SweepCount returns the cumulative number of sweeps dispatched for one tier
// over the quota's lifetime.
func (q *Quota) SweepCount(pass ReclamationPass) int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.sweepCounts[pass]
}

// AddStatistics sums this quota's accounting into stats.
func (q *Quota) AddStatistics(stats *quotautils.Statistics) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	stats.QuotaCount++
	stats.OwnerCount += q.owners.Count()
	stats.ReservedBytes += q.used
}

func (q *Quota) printParameters(json *jwriter.ObjectState) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	json.Name("Name").String(q.name)
	if q.limit == UnlimitedSize {
		json.Name("Limit").String("unlimited")
	} else {
		json.Name("Limit").Int(q.limit)
	}
	json.Name("Used").Int(q.used)
	json.Name("State").String(q.state.String())
	json.Name("Owners").Int(q.owners.Count())

	sweeps := json.Name("Sweeps").Object()
	for pass := PassBenign; pass < ReclamationPassCount; pass++ {
		sweeps.Name(pass.String()).Int(q.sweepCounts[pass])
	}
	sweeps.End()
}

// AddDetailedStatistics sums accounting across every quota and live reservation
// in the registry into stats.
func (r *Registry) AddDetailedStatistics(stats *quotautils.DetailedStatistics) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.quotas.Iter(func(_ slotmap.Handle, q *Quota) bool {
		q.AddStatistics(&stats.Statistics)
		for pass := PassBenign; pass < ReclamationPassCount; pass++ {
			stats.SweepCount += q.SweepCount(pass)
		}
		return false
	})

	r.reservations.Iter(func(_ slotmap.Handle, res *Reservation) bool {
		size := res.Granted()
		if size < stats.ReservationSizeMin {
			stats.ReservationSizeMin = size
		}
		if size > stats.ReservationSizeMax {
			stats.ReservationSizeMax = size
		}
		stats.ReservationCount++
		return false
	})
}

// BuildStatsString produces a JSON snapshot of every quota in the registry,
// suitable for diagnostics output.
func (r *Registry) BuildStatsString() string {
	writer := jwriter.NewWriter()

	root := writer.Object()

	r.mutex.Lock()
	quotas := root.Name("Quotas").Array()
	r.quotas.Iter(func(_ slotmap.Handle, q *Quota) bool {
		obj := quotas.Object()
		q.printParameters(&obj)
		obj.End()
		return false
	})
	quotas.End()

	root.Name("OwnerHandles").Int(r.owners.Count())
	root.Name("ReservationHandles").Int(r.reservations.Count())
	r.mutex.Unlock()

	root.End()

	return string(writer.Bytes())
}
