package quota

import (
	"fmt"
	"log/slog"

	cerrors "github.com/cockroachdb/errors"

	"github.com/disjukr/memquota/quota/internal/utils"
	"github.com/disjukr/memquota/quotautils"
)

// Allocator converts sizing requests into Reservations against a bound quota
// and tracks the usage it personally attributes there. An allocator is bound to
// exactly one quota at any instant; Rebind moves its attributed usage to a new
// quota atomically.
type Allocator struct {
	owner *Owner

	mutex            utils.OptionalMutex
	quota            *Quota
	attributed       int
	reservationCount int
}

// Quota returns the quota this allocator is currently bound to.
func (a *Allocator) Quota() *Quota {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.quota
}

// AttributedBytes returns the bytes this allocator currently attributes to its
// bound quota.
func (a *Allocator) AttributedBytes() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.attributed
}

// MakeReservation grants a reservation of between min and max bytes, preferring
// to stay within the bound quota's remaining budget: the grant is
// min+headroom clamped into [min, max]. The call never fails because the quota
// is over budget - grants fall back to min - but a malformed request (min > max,
// a negative bound, or max beyond MaxRequestSize) is rejected with
// ErrInvalidRequest before any state changes.
//
// Granting past the budget schedules the reclamation pipeline; the call itself
// never blocks on reclamation.
func (a *Allocator) MakeReservation(min, max int) (*Reservation, error) {
	if min < 0 {
		return nil, cerrors.Wrapf(ErrInvalidRequest, "min is %d", min)
	}
	if min > max {
		return nil, cerrors.Wrapf(ErrInvalidRequest, "min %d exceeds max %d", min, max)
	}
	if max > MaxRequestSize {
		return nil, cerrors.Wrapf(ErrInvalidRequest, "max %d exceeds the request cap %d", max, MaxRequestSize)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	q := a.quota
	q.mutex.Lock()
	defer q.mutex.Unlock()

	headroom := 0
	if q.limit > q.used {
		headroom = q.limit - q.used
	}
	granted := max
	if headroom < max-min {
		granted = min + headroom
	}

	a.attributed += granted
	a.reservationCount++
	q.noteUsageChangedLocked(granted)

	q.logger.Debug("Allocator::MakeReservation",
		slog.String("quota", q.name),
		slog.Int("min", min),
		slog.Int("max", max),
		slog.Int("granted", granted))

	return &Reservation{alloc: a, granted: granted}, nil
}

// Rebind atomically moves this allocator, its owner and its attributed usage
// from the current quota to target. No intermediate state is observable where
// the usage is counted against both quotas or neither. Reservations issued
// under the old quota are unaffected; their eventual release credits whichever
// quota the allocator is bound to at that time.
func (a *Allocator) Rebind(target *Quota) {
	if target == nil {
		panic("rebound an allocator to a nil quota")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	old := a.quota
	if old == target {
		return
	}

	lockPair(old, target)
	defer unlockPair(old, target)

	old.detachOwnerLocked(a.owner)
	old.noteUsageChangedLocked(-a.attributed)

	if !a.owner.isDestroyed() {
		target.owners.Put(a.owner.id, a.owner)
	}
	a.quota = target
	target.noteUsageChangedLocked(a.attributed)

	target.logger.Debug("Allocator::Rebind",
		slog.String("from", old.name),
		slog.String("to", target.name),
		slog.Int("attributed", a.attributed))
}

// releaseBytes returns granted bytes from a reservation to the bound quota.
func (a *Allocator) releaseBytes(granted int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.attributed -= granted
	if a.attributed < 0 {
		panic(fmt.Sprintf("attributed bytes went negative: %d", a.attributed))
	}
	a.reservationCount--
	if a.reservationCount < 0 {
		panic(fmt.Sprintf("reservation count went negative: %d", a.reservationCount))
	}

	q := a.quota
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.noteUsageChangedLocked(-granted)
}

// Validate performs internal consistency checks. When the implementation is
// functioning correctly it cannot return an error.
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if err := quotautils.CheckNonNegative(a.attributed, "attributed bytes"); err != nil {
		return err
	}
	if err := quotautils.CheckNonNegative(a.reservationCount, "reservation count"); err != nil {
		return err
	}
	if a.quota == nil {
		return cerrors.New("allocator is not bound to a quota")
	}
	return nil
}
