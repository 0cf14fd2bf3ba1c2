package quota

import (
	"log/slog"

	cerrors "github.com/cockroachdb/errors"

	"github.com/disjukr/memquota/quota/internal/utils"
	"github.com/disjukr/memquota/quotautils"
	"github.com/disjukr/memquota/slotmap"
	"github.com/disjukr/memquota/workq"
)

// QuotaHandle is a stable, generational reference to a quota held in a
// Registry. A handle outlives deletion safely: operations through a stale
// handle do not alias whatever object later reuses the slot.
type QuotaHandle slotmap.Handle

// OwnerHandle is a stable, generational reference to an owner held in a Registry.
type OwnerHandle slotmap.Handle

// ReservationHandle is a stable, generational reference to a reservation held
// in a Registry.
type ReservationHandle slotmap.Handle

// Registry is the handle-based surface consumed by the rest of the host
// system. It owns the deferred-work queue on which all reclamation dispatch
// runs and maps generational handles onto quotas, owners and reservations.
//
// Deleting a quota handle while owners are still bound does not tear the quota
// down: bound owners keep operating against it until they are rebound or
// deleted, and the object goes away once nothing references it.
type Registry struct {
	logger *slog.Logger
	sched  *workq.Queue

	externallySynchronized bool

	mutex        utils.OptionalMutex
	quotas       slotmap.Map[*Quota]
	owners       slotmap.Map[*Owner]
	reservations slotmap.Map[*Reservation]
}

// RegistryOptions configures NewRegistry. The zero value is usable.
type RegistryOptions struct {
	// Logger receives debug-level operation traces. Defaults to slog.Default().
	Logger *slog.Logger
	// Scheduler is the deferred-work queue reclamation runs on. When nil the
	// registry creates its own; drain it via Scheduler().
	Scheduler *workq.Queue
	// ExternallySynchronized elides internal locking for embedders that
	// guarantee single-threaded access themselves.
	ExternallySynchronized bool
}

// NewRegistry creates an empty registry.
func NewRegistry(options RegistryOptions) *Registry {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sched := options.Scheduler
	if sched == nil {
		sched = &workq.Queue{}
	}

	r := &Registry{
		logger:                 logger,
		sched:                  sched,
		externallySynchronized: options.ExternallySynchronized,
	}
	r.mutex.UseMutex = !options.ExternallySynchronized
	return r
}

// Scheduler returns the deferred-work queue reclamation dispatch runs on. The
// host must drain it for reclamation to make progress.
func (r *Registry) Scheduler() *workq.Queue {
	return r.sched
}

// CreateQuota creates a quota with the given byte budget and returns its
// handle. A limit of zero or less creates an unlimited quota.
func (r *Registry) CreateQuota(limit int) QuotaHandle {
	return r.CreateNamedQuota("", limit)
}

// CreateNamedQuota is CreateQuota with an explicit name for logs, stats dumps
// and metrics.
func (r *Registry) CreateNamedQuota(name string, limit int) QuotaHandle {
	q := NewQuota(r.sched, QuotaOptions{
		Name:                   name,
		Limit:                  limit,
		Logger:                 r.logger,
		ExternallySynchronized: r.externallySynchronized,
	})

	r.mutex.Lock()
	defer r.mutex.Unlock()
	return QuotaHandle(r.quotas.Insert(q))
}

// Quota resolves a handle to the underlying quota.
func (r *Registry) Quota(handle QuotaHandle) (*Quota, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.quotas.Get(slotmap.Handle(handle))
}

// DeleteQuota removes the quota handle. Owners still bound to the quota keep
// working against it until they are rebound or deleted. Deleting an unknown or
// already-deleted handle is a no-op.
func (r *Registry) DeleteQuota(handle QuotaHandle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.quotas.Delete(slotmap.Handle(handle))
}

// SetQuotaSize changes a quota's byte budget, scheduling reclamation if usage
// now exceeds it.
func (r *Registry) SetQuotaSize(handle QuotaHandle, bytes int) error {
	if bytes < 0 {
		return cerrors.Wrapf(ErrInvalidRequest, "quota size %d is negative", bytes)
	}

	q, ok := r.Quota(handle)
	if !ok {
		return cerrors.Wrapf(ErrUnknownHandle, "quota %s", slotmap.Handle(handle))
	}
	q.SetSize(bytes)
	quotautils.DebugValidate(q)
	return nil
}

// CreateOwner creates an owner bound to the given quota and returns its handle.
func (r *Registry) CreateOwner(handle QuotaHandle) (OwnerHandle, error) {
	q, ok := r.Quota(handle)
	if !ok {
		return OwnerHandle(slotmap.NilHandle), cerrors.Wrapf(ErrUnknownHandle, "quota %s", slotmap.Handle(handle))
	}

	o := q.CreateOwner()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	return OwnerHandle(r.owners.Insert(o)), nil
}

// Owner resolves a handle to the underlying owner.
func (r *Registry) Owner(handle OwnerHandle) (*Owner, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.owners.Get(slotmap.Handle(handle))
}

// DeleteOwner shuts the owner down and removes its handle. Deleting an unknown
// or already-deleted handle is a no-op.
func (r *Registry) DeleteOwner(handle OwnerHandle) {
	r.mutex.Lock()
	o, ok := r.owners.Delete(slotmap.Handle(handle))
	r.mutex.Unlock()

	if ok {
		o.Shutdown()
	}
}

// RebindOwner moves the owner and its attributed usage to a different quota.
func (r *Registry) RebindOwner(owner OwnerHandle, target QuotaHandle) error {
	o, ok := r.Owner(owner)
	if !ok {
		return cerrors.Wrapf(ErrUnknownHandle, "owner %s", slotmap.Handle(owner))
	}
	q, ok := r.Quota(target)
	if !ok {
		return cerrors.Wrapf(ErrUnknownHandle, "quota %s", slotmap.Handle(target))
	}

	o.Rebind(q)
	quotautils.DebugValidate(q)
	return nil
}

// MakeReservation reserves between min and max bytes through the owner's
// allocator and returns a handle to the reservation. See
// Allocator.MakeReservation for the grant policy.
func (r *Registry) MakeReservation(owner OwnerHandle, min, max int) (ReservationHandle, error) {
	o, ok := r.Owner(owner)
	if !ok {
		return ReservationHandle(slotmap.NilHandle), cerrors.Wrapf(ErrUnknownHandle, "owner %s", slotmap.Handle(owner))
	}

	res, err := o.MakeReservation(min, max)
	if err != nil {
		return ReservationHandle(slotmap.NilHandle), err
	}
	quotautils.DebugValidate(o.Allocator())

	r.mutex.Lock()
	defer r.mutex.Unlock()
	return ReservationHandle(r.reservations.Insert(res)), nil
}

// ReleaseReservation returns a reservation's bytes to its allocator and removes
// the handle. Releasing an unknown or already-released handle is a no-op.
func (r *Registry) ReleaseReservation(handle ReservationHandle) {
	r.mutex.Lock()
	res, ok := r.reservations.Delete(slotmap.Handle(handle))
	r.mutex.Unlock()

	if ok {
		res.Release()
	}
}

// PostReclaimer registers fn as the owner's reclaimer for the given tier,
// replacing any previous registration for that tier.
func (r *Registry) PostReclaimer(owner OwnerHandle, pass ReclamationPass, fn ReclaimFunc) error {
	o, ok := r.Owner(owner)
	if !ok {
		return cerrors.Wrapf(ErrUnknownHandle, "owner %s", slotmap.Handle(owner))
	}

	o.PostReclaimer(pass, fn)
	return nil
}
