package quota

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ReclamationPass identifies one tier of the escalating reclamation protocol.
// When a quota is over budget we start trying to claim memory back from owners
// in multiple passes: if a less destructive operation is available we do that,
// otherwise we do something more destructive.
type ReclamationPass uint32

const (
	// PassBenign is for reclamation steps that are not observable outside the
	// host system, besides maybe causing an increase in CPU usage. Resizing a
	// buffer to fit current load rather than peak usage is a benign step.
	PassBenign ReclamationPass = iota
	// PassIdle is for reclamation steps that are observable outside the host
	// system but do not cause application work to be lost, such as dropping
	// connections that are not being used.
	PassIdle
	// PassDestructive is the last resort; these reclamations are allowed to
	// drop work, such as cancelling in-flight calls.
	PassDestructive
)

// ReclamationPassCount is the number of reclamation tiers.
const ReclamationPassCount = 3

var reclamationPassMapping = map[ReclamationPass]string{
	PassBenign:      "PassBenign",
	PassIdle:        "PassIdle",
	PassDestructive: "PassDestructive",
}

func (p ReclamationPass) String() string {
	return reclamationPassMapping[p]
}

func (p ReclamationPass) next() ReclamationPass {
	if p >= PassDestructive {
		panic(fmt.Sprintf("attempted to escalate past %s", PassDestructive))
	}
	return p + 1
}

// ReclaimState describes where a quota currently is in the reclamation protocol.
type ReclaimState uint32

const (
	// StateNormal means usage is within budget, or pressure has not been
	// observed since the last pass settled.
	StateNormal ReclaimState = iota
	StateReclaimingBenign
	StateReclaimingIdle
	StateReclaimingDestructive
	// StateExhausted means a full escalation through PassDestructive completed
	// with usage still over budget. The pipeline re-arms on the next usage
	// change or SetSize; there is no retry loop absent a triggering event.
	StateExhausted
)

var reclaimStateMapping = map[ReclaimState]string{
	StateNormal:                "StateNormal",
	StateReclaimingBenign:      "StateReclaimingBenign",
	StateReclaimingIdle:        "StateReclaimingIdle",
	StateReclaimingDestructive: "StateReclaimingDestructive",
	StateExhausted:             "StateExhausted",
}

func (s ReclaimState) String() string {
	return reclaimStateMapping[s]
}

func reclaimingStateFor(pass ReclamationPass) ReclaimState {
	switch pass {
	case PassBenign:
		return StateReclaimingBenign
	case PassIdle:
		return StateReclaimingIdle
	case PassDestructive:
		return StateReclaimingDestructive
	}
	panic(fmt.Sprintf("no reclaiming state for pass %d", pass))
}

func (s ReclaimState) reclaimingPass() ReclamationPass {
	switch s {
	case StateReclaimingBenign:
		return PassBenign
	case StateReclaimingIdle:
		return PassIdle
	case StateReclaimingDestructive:
		return PassDestructive
	}
	panic(fmt.Sprintf("state %s has no reclamation pass", s))
}

// ReclaimFunc is a reclaimer callback. It receives a one-shot sweep token and
// must arrange for Finish to be called eventually, either before returning or
// from a later scheduled closure.
type ReclaimFunc func(sweep *ReclamationSweep)

// ReclamationSweep represents a single invocation of a reclaimer. The pass that
// dispatched it is not considered finished until every sweep it dispatched has
// called Finish. A sweep may be retained past the callback's return and
// finished from deferred work; finishing a sweep whose pass has already been
// abandoned is a silent no-op.
type ReclamationSweep struct {
	quota    *Quota
	pass     ReclamationPass
	passGen  uint64
	finished atomic.Bool
}

// Pass returns the tier this sweep was dispatched for.
func (s *ReclamationSweep) Pass() ReclamationPass {
	return s.pass
}

// IsSufficient reports whether enough memory has been freed that the quota is
// back under budget. Reclaimers with a variable amount of work can use this to
// stop early instead of shedding everything they have.
func (s *ReclamationSweep) IsSufficient() bool {
	s.quota.mutex.RLock()
	defer s.quota.mutex.RUnlock()
	return s.quota.used <= s.quota.limit
}

// Finish signals that this sweep's reclamation work is complete. Calling Finish
// more than once is a no-op.
func (s *ReclamationSweep) Finish() {
	if s == nil || s.finished.Swap(true) {
		return
	}
	s.quota.finishSweep(s.passGen)
}

// maybeStartReclaimLocked enters the pipeline if usage exceeds the limit and no
// pass is currently in flight. Callers hold q.mutex.
func (q *Quota) maybeStartReclaimLocked() {
	if q.used <= q.limit {
		if q.state == StateExhausted {
			q.state = StateNormal
		}
		return
	}
	if q.state != StateNormal && q.state != StateExhausted {
		// A pass is already running; its completion re-checks the budget.
		return
	}
	q.startPassLocked(PassBenign)
}

// startPassLocked begins one reclamation pass: it collects the owners holding a
// reclaimer for the tier and schedules one sweep dispatch per owner on the
// deferred-work queue. Dispatching through the queue keeps reclaimer callbacks
// off the call stack that detected pressure. Callers hold q.mutex.
func (q *Quota) startPassLocked(pass ReclamationPass) {
	q.state = reclaimingStateFor(pass)
	q.passGen++
	gen := q.passGen

	var targets []*Owner
	q.owners.Iter(func(_ uint64, o *Owner) bool {
		if o.hasReclaimer(pass) {
			targets = append(targets, o)
		}
		return false
	})

	q.logger.Debug("Quota::startPass",
		slog.String("quota", q.name),
		slog.String("pass", pass.String()),
		slog.Int("targets", len(targets)))

	q.outstanding = len(targets)
	q.sweepCounts[pass] += len(targets)

	if len(targets) == 0 {
		// Nothing registered at this tier; evaluate from the queue so the
		// triggering call never runs escalation logic reentrantly.
		q.sched.Schedule(func() {
			q.mutex.Lock()
			defer q.mutex.Unlock()
			if gen != q.passGen {
				return
			}
			q.evaluatePassLocked()
		})
		return
	}

	for _, target := range targets {
		target := target
		q.sched.Schedule(func() {
			q.dispatchSweep(gen, pass, target)
		})
	}
}

// dispatchSweep consumes the owner's reclaimer for the tier and invokes it. If
// the owner was shut down, or replaced its registration, between pass start and
// dispatch, the sweep resolves immediately with no memory freed.
func (q *Quota) dispatchSweep(gen uint64, pass ReclamationPass, target *Owner) {
	sweep := &ReclamationSweep{quota: q, pass: pass, passGen: gen}

	fn := target.takeReclaimer(pass)
	if fn == nil {
		sweep.Finish()
		return
	}
	fn(sweep)
}

func (q *Quota) finishSweep(gen uint64) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if gen != q.passGen {
		// The pass this sweep belonged to has already settled.
		return
	}

	if q.outstanding <= 0 {
		panic(fmt.Sprintf("sweep finished with %d outstanding in pass %d", q.outstanding, gen))
	}
	q.outstanding--
	if q.outstanding > 0 {
		return
	}
	q.evaluatePassLocked()
}

// evaluatePassLocked runs after every sweep of the current pass has finished:
// settle back to normal if the budget is satisfied, otherwise escalate, or mark
// the quota exhausted after the destructive tier. Callers hold q.mutex.
func (q *Quota) evaluatePassLocked() {
	if q.used <= q.limit {
		q.logger.Debug("Quota::reclaimSettled",
			slog.String("quota", q.name),
			slog.Int("used", q.used),
			slog.Int("limit", q.limit))
		q.state = StateNormal
		q.passGen++
		return
	}

	switch q.state {
	case StateReclaimingBenign, StateReclaimingIdle:
		q.startPassLocked(q.state.reclaimingPass().next())
	case StateReclaimingDestructive:
		q.logger.Debug("Quota::exhausted",
			slog.String("quota", q.name),
			slog.Int("used", q.used),
			slog.Int("limit", q.limit))
		q.state = StateExhausted
		q.passGen++
	default:
		panic(fmt.Sprintf("reclamation pass completed in unexpected state %s", q.state))
	}
}
