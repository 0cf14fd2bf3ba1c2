// Package quota implements dynamic memory admission control: named byte
// budgets (Quota), per-work-unit accounting handles that draw against them
// (Owner, Allocator, Reservation), and an escalating reclamation pipeline that
// asks owners to shed memory voluntarily before anything is throttled.
//
// Reservations are granted eagerly: usage may transiently exceed a quota's
// limit, and the pipeline drives it back down reactively rather than ever
// blocking an allocation call. Cross-owner notifications run as closures on a
// workq.Queue, never as nested reentrant calls.
package quota

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"

	"github.com/disjukr/memquota/quota/internal/utils"
	"github.com/disjukr/memquota/quotautils"
	"github.com/disjukr/memquota/workq"
)

const (
	// UnlimitedSize is the sentinel limit for a quota with no effective budget.
	UnlimitedSize = math.MaxInt
	// MaxRequestSize is the global cap on a single reservation request.
	MaxRequestSize = 1 << 40
)

var nextQuotaID atomic.Uint64

// Quota is a named memory pool with a mutable byte budget and a set of bound
// owners. It aggregates the usage its owners' allocators attribute to it and
// drives the reclamation pipeline when usage exceeds the budget.
//
// A Quota holds non-owning references to its owners: it does not keep them
// alive, and it remains usable by bound owners after the caller has dropped
// every other reference to it.
type Quota struct {
	id       uint64
	name     string
	logger   *slog.Logger
	sched    *workq.Queue
	useMutex bool

	mutex  utils.OptionalRWMutex
	limit  int
	used   int
	owners *swiss.Map[uint64, *Owner]

	state       ReclaimState
	passGen     uint64
	outstanding int
	sweepCounts [ReclamationPassCount]int
}

// QuotaOptions configures NewQuota. The zero value creates an unlimited quota
// with internal locking and the default logger.
type QuotaOptions struct {
	// Name identifies the quota in logs, stats dumps and metrics. Defaults to
	// "quota-<id>".
	Name string
	// Limit is the initial byte budget. Zero or negative means UnlimitedSize.
	Limit int
	// Logger receives debug-level operation traces. Defaults to slog.Default().
	Logger *slog.Logger
	// ExternallySynchronized elides internal locking for embedders that
	// guarantee single-threaded access themselves.
	ExternallySynchronized bool
}

// NewQuota creates a quota whose reclamation work is scheduled on sched.
func NewQuota(sched *workq.Queue, options QuotaOptions) *Quota {
	if sched == nil {
		panic("created a quota without a work queue")
	}

	limit := options.Limit
	if limit <= 0 {
		limit = UnlimitedSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Quota{
		id:       nextQuotaID.Add(1),
		name:     options.Name,
		logger:   logger,
		sched:    sched,
		useMutex: !options.ExternallySynchronized,
		limit:    limit,
		owners:   swiss.NewMap[uint64, *Owner](8),
		state:    StateNormal,
	}
	q.mutex.UseMutex = q.useMutex
	if q.name == "" {
		q.name = fmt.Sprintf("quota-%d", q.id)
	}

	return q
}

// Name returns the quota's identity for logs and stats.
func (q *Quota) Name() string { return q.name }

// Limit returns the current byte budget.
func (q *Quota) Limit() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.limit
}

// Used returns the bytes currently attributed to this quota. It may exceed
// Limit transiently while reclamation is in progress.
func (q *Quota) Used() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.used
}

// State returns where the quota currently is in the reclamation protocol.
func (q *Quota) State() ReclaimState {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.state
}

// SetSize changes the byte budget. Shrinking below current usage schedules the
// reclamation pipeline; the call itself never blocks on reclamation.
func (q *Quota) SetSize(limit int) {
	if limit < 0 {
		panic(fmt.Sprintf("quota %s resized to negative limit %d", q.name, limit))
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.logger.Debug("Quota::SetSize",
		slog.String("quota", q.name),
		slog.Int("limit", limit),
		slog.Int("used", q.used))

	q.limit = limit
	q.maybeStartReclaimLocked()
}

// CreateOwner creates an Owner bound to this quota and registers it in the
// quota's owner set.
func (q *Quota) CreateOwner() *Owner {
	o := &Owner{id: nextQuotaID.Add(1)}
	o.mutex.UseMutex = q.useMutex
	o.alloc = &Allocator{quota: q, owner: o}
	o.alloc.mutex.UseMutex = q.useMutex

	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.owners.Put(o.id, o)

	return o
}

// noteUsageChangedLocked applies a usage delta from a bound allocator and
// schedules reclamation if the quota is now over budget. Callers hold q.mutex.
func (q *Quota) noteUsageChangedLocked(delta int) {
	q.used += delta
	if q.used < 0 {
		panic(fmt.Sprintf("usage for quota %s went negative: %d", q.name, q.used))
	}
	q.maybeStartReclaimLocked()
}

func (q *Quota) detachOwnerLocked(o *Owner) {
	q.owners.Delete(o.id)
}

// lockPair locks two distinct quotas in id order so that concurrent rebinds
// between the same pair cannot deadlock.
func lockPair(a, b *Quota) {
	if a.id < b.id {
		a.mutex.Lock()
		b.mutex.Lock()
	} else {
		b.mutex.Lock()
		a.mutex.Lock()
	}
}

func unlockPair(a, b *Quota) {
	a.mutex.Unlock()
	b.mutex.Unlock()
}

// Validate performs internal consistency checks. When the implementation is
// functioning correctly it cannot return an error.
func (q *Quota) Validate() error {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	if err := quotautils.CheckNonNegative(q.used, "used"); err != nil {
		return err
	}
	if err := quotautils.CheckNonNegative(q.outstanding, "outstanding sweeps"); err != nil {
		return err
	}
	if q.outstanding > 0 {
		switch q.state {
		case StateReclaimingBenign, StateReclaimingIdle, StateReclaimingDestructive:
		default:
			return cerrors.Newf("%d sweeps outstanding in state %s", q.outstanding, q.state)
		}
	}
	return nil
}
