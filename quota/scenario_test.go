package quota_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/disjukr/memquota/quota"
	"github.com/disjukr/memquota/slab"
)

// scratchCache is the shape of a typical embedder: scratch buffers cut from a
// region, with the reservation covering the region's footprint and a benign
// reclaimer that drops the whole cache under pressure.
type scratchCache struct {
	owner       *quota.Owner
	region      *slab.Region
	reservation *quota.Reservation
}

func newScratchCache(t *testing.T, q *quota.Quota) *scratchCache {
	t.Helper()
	cache := &scratchCache{
		owner:  q.CreateOwner(),
		region: slab.NewRegion(1024),
	}
	cache.owner.PostReclaimer(quota.PassBenign, cache.reclaim)
	return cache
}

func (c *scratchCache) fill(t *testing.T, bytes int) {
	t.Helper()
	for allocated := 0; allocated < bytes; allocated += 256 {
		c.region.Alloc(256)
	}

	res, err := c.owner.MakeReservation(c.region.AllocatedBytes(), c.region.AllocatedBytes())
	require.NoError(t, err)
	if c.reservation != nil {
		c.reservation.Release()
	}
	c.reservation = res
}

func (c *scratchCache) reclaim(sweep *quota.ReclamationSweep) {
	c.region.Reset()
	if c.reservation != nil {
		c.reservation.Release()
		c.reservation = nil
	}
	c.owner.PostReclaimer(quota.PassBenign, c.reclaim)
	sweep.Finish()
}

func TestScratchRegionDropsUnderPressure(t *testing.T) {
	q, sched := newTestQuota(t, 4096)

	cache := newScratchCache(t, q)
	cache.fill(t, 2048)
	require.Equal(t, 2048, q.Used())
	require.Equal(t, quota.StateNormal, q.State())

	// Fixed-size demand from another owner pushes the quota over budget; the
	// cache's benign reclaimer gives its region back.
	greedy := q.CreateOwner()
	_, err := greedy.MakeReservation(4096, 4096)
	require.NoError(t, err)
	sched.Drain()

	require.Equal(t, quota.StateNormal, q.State())
	require.Equal(t, 4096, q.Used())
	require.Equal(t, 0, cache.region.AllocatedBytes())
	require.Nil(t, cache.reservation)
}

// TestScriptedOperationSoup drives the registry through a deterministic
// pseudo-random operation soup, including handles that were never issued or
// already deleted. Nothing here asserts intermediate accounting; the test is
// that no operation panics and the registry validates at the end.
func TestScriptedOperationSoup(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := quota.NewRegistry(quota.RegistryOptions{})

	var quotaHandles []quota.QuotaHandle
	var ownerHandles []quota.OwnerHandle
	var reservationHandles []quota.ReservationHandle

	randomQuota := func() quota.QuotaHandle {
		if len(quotaHandles) == 0 || rng.Intn(10) == 0 {
			return quota.QuotaHandle(rng.Uint64())
		}
		return quotaHandles[rng.Intn(len(quotaHandles))]
	}
	randomOwner := func() quota.OwnerHandle {
		if len(ownerHandles) == 0 || rng.Intn(10) == 0 {
			return quota.OwnerHandle(rng.Uint64())
		}
		return ownerHandles[rng.Intn(len(ownerHandles))]
	}

	for step := 0; step < 2000; step++ {
		switch rng.Intn(10) {
		case 0:
			quotaHandles = append(quotaHandles, r.CreateQuota(rng.Intn(1<<20)))
		case 1:
			r.DeleteQuota(randomQuota())
		case 2:
			_ = r.SetQuotaSize(randomQuota(), rng.Intn(1<<20)-1)
		case 3:
			if oh, err := r.CreateOwner(randomQuota()); err == nil {
				ownerHandles = append(ownerHandles, oh)
			}
		case 4:
			r.DeleteOwner(randomOwner())
		case 5:
			_ = r.RebindOwner(randomOwner(), randomQuota())
		case 6:
			min := rng.Intn(1 << 12)
			if rh, err := r.MakeReservation(randomOwner(), min, min+rng.Intn(1<<12)); err == nil {
				reservationHandles = append(reservationHandles, rh)
			}
		case 7:
			if len(reservationHandles) > 0 {
				r.ReleaseReservation(reservationHandles[rng.Intn(len(reservationHandles))])
			} else {
				r.ReleaseReservation(quota.ReservationHandle(rng.Uint64()))
			}
		case 8:
			_ = r.PostReclaimer(randomOwner(), quota.ReclamationPass(rng.Intn(quota.ReclamationPassCount)),
				func(sweep *quota.ReclamationSweep) {
					sweep.Finish()
				})
		case 9:
			r.Scheduler().Drain()
		}
	}
	r.Scheduler().Drain()

	for _, qh := range quotaHandles {
		if q, ok := r.Quota(qh); ok {
			require.NoError(t, q.Validate())
		}
	}
	for _, oh := range ownerHandles {
		if o, ok := r.Owner(oh); ok {
			require.NoError(t, o.Allocator().Validate())
		}
	}
}
