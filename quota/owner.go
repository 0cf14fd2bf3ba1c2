package quota

import (
	"fmt"

	"github.com/disjukr/memquota/quota/internal/utils"
)

// Owner is the client-facing accounting and reclamation unit for one unit of
// work, such as a connection or a call. It combines one Allocator with a set of
// per-tier reclaimer registrations. An owner holds at most one registration per
// tier; posting a new reclaimer for a tier replaces the previous one.
type Owner struct {
	id    uint64
	alloc *Allocator

	mutex      utils.OptionalMutex
	reclaimers [ReclamationPassCount]ReclaimFunc
	destroyed  bool
}

// Allocator returns the allocator backing this owner.
func (o *Owner) Allocator() *Allocator {
	return o.alloc
}

// MakeReservation reserves between min and max bytes through the owner's
// allocator. See Allocator.MakeReservation.
func (o *Owner) MakeReservation(min, max int) (*Reservation, error) {
	return o.alloc.MakeReservation(min, max)
}

// Rebind moves this owner and its attributed usage to a different quota. See
// Allocator.Rebind.
func (o *Owner) Rebind(target *Quota) {
	o.alloc.Rebind(target)
}

// PostReclaimer stores fn as the sole reclaimer for the given tier on this
// owner, replacing any previous registration for that tier. A registration is
// consumed when its sweep is dispatched; reclaimers that want to stay enrolled
// re-register from their callback. Posting to a shut-down owner is a no-op.
func (o *Owner) PostReclaimer(pass ReclamationPass, fn ReclaimFunc) {
	if pass >= ReclamationPassCount {
		panic(fmt.Sprintf("posted a reclaimer for unknown pass %d", pass))
	}
	if fn == nil {
		panic(fmt.Sprintf("posted a nil reclaimer for %s", pass))
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.destroyed {
		return
	}
	o.reclaimers[pass] = fn
}

// Shutdown destroys the owner: all tier registrations are dropped, the owner
// leaves its quota's owner set, and any sweep already dispatched to it resolves
// as a safe no-op contributing no freed memory. Reservations issued by the
// owner's allocator remain valid and must still be released by their holders.
// Shutdown is idempotent.
func (o *Owner) Shutdown() {
	o.mutex.Lock()
	if o.destroyed {
		o.mutex.Unlock()
		return
	}
	o.destroyed = true
	for i := range o.reclaimers {
		o.reclaimers[i] = nil
	}
	o.mutex.Unlock()

	a := o.alloc
	a.mutex.Lock()
	q := a.quota
	a.mutex.Unlock()

	q.mutex.Lock()
	q.detachOwnerLocked(o)
	q.mutex.Unlock()
}

func (o *Owner) isDestroyed() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.destroyed
}

func (o *Owner) hasReclaimer(pass ReclamationPass) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return !o.destroyed && o.reclaimers[pass] != nil
}

// takeReclaimer consumes the registration for one tier. It returns nil if the
// owner was shut down or the registration was already consumed or replaced.
func (o *Owner) takeReclaimer(pass ReclamationPass) ReclaimFunc {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.destroyed {
		return nil
	}
	fn := o.reclaimers[pass]
	o.reclaimers[pass] = nil
	return fn
}
