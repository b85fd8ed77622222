// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package planner implements the workplan lifecycle engine: the
// deterministic expansion of recurring schedules, backfill and replay
// of past slots, the retry state machine, expiry sweeps, the
// fatal-error circuit breaker, and child-schedule generation.
//
// The engine keeps no state of its own; everything lives behind the
// workplan.Store port.  Operations that perform more than one storage
// mutation run inside a nested transactional scope, so either all of
// their effects commit or none do.  Time comes from an injected
// clock, which is how the tests pin "now".
package planner

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// Planner is the lifecycle engine over one workplan store.
type Planner struct {
	store workplan.Store
	clock clock.Clock
	log   logrus.FieldLogger
}

// New creates an engine over a store using the real time source.
func New(store workplan.Store) *Planner {
	return NewWithClock(store, clock.New())
}

// NewWithClock creates an engine with an explicit time source.  Most
// application code should call New(); this entry point is for tests
// that need to inject a mock clock.
func NewWithClock(store workplan.Store, clk clock.Clock) *Planner {
	return &Planner{
		store: store,
		clock: clk,
		log:   logrus.StandardLogger(),
	}
}

// SetLogger replaces the engine's logger.
func (p *Planner) SetLogger(log logrus.FieldLogger) {
	p.log = log
}

func (p *Planner) now() time.Time {
	return workplan.UTC(p.clock.Now())
}

// IsCreateNext reports whether the schedule's next slot is due: a
// last slot exists and at least one full interval has passed since
// its worktime.
func (p *Planner) IsCreateNext(name string, step time.Duration) (bool, error) {
	return p.isCreateNext(p.store, name, step)
}

// NextWorktime computes the worktime the next slot of the schedule
// would get: the last worktime snapped forward to the most recent
// interval boundary.  Returns zero time if the schedule has no slots.
func (p *Planner) NextWorktime(name string, step time.Duration) (time.Time, error) {
	return p.nextWorktime(p.store, name, step)
}

// CreateNextOrNone atomically creates the schedule's next slot if one
// is due.  Returns nil without error when no slot is due or when a
// concurrent caller won the race to create it.
func (p *Planner) CreateNextOrNone(name string, step time.Duration, data map[string]interface{}) (*workplan.Workplan, error) {
	var created *workplan.Workplan
	err := p.store.Transaction(func(tx workplan.Store) error {
		var err error
		created, err = p.createNextOrNone(tx, name, step, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FillMissing creates the slots of the schedule that are absent from
// the interval grid between start and end (end defaults to now),
// returning only the newly created slots.  Existing slots are never
// touched, so the operation is idempotent.
func (p *Planner) FillMissing(name string, step time.Duration, start, end time.Time, data map[string]interface{}) ([]workplan.Workplan, error) {
	var created []workplan.Workplan
	err := p.store.Transaction(func(tx workplan.Store) error {
		var err error
		created, err = p.fillMissing(tx, name, step, start, end, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RecreatePrev forces replay of past slots: the targeted worktimes
// are deleted and re-created with default status.  Targets are the
// anchor worktime shifted back by the given offsets; from overrides
// the anchor (default: the schedule's first worktime snapped to the
// last boundary).  Returns nil when the schedule has no slots.
func (p *Planner) RecreatePrev(name string, offsets workplan.OffsetPeriods, step time.Duration, from time.Time, data map[string]interface{}) ([]workplan.Workplan, error) {
	var created []workplan.Workplan
	err := p.store.Transaction(func(tx workplan.Store) error {
		var err error
		created, err = p.recreatePrev(tx, name, offsets, step, from, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// IsAllowedExecute is the fatal-error circuit breaker.  While the
// schedule's most recent slot carries the caller's hash, execution is
// allowed only as long as fewer than maxFatalErrors slots with that
// hash ended in StatusFatalError.  A different hash (a changed job
// definition) resets the breaker.
func (p *Planner) IsAllowedExecute(name, hash string, maxFatalErrors int) (bool, error) {
	return p.isAllowedExecute(p.store, name, hash, maxFatalErrors)
}

// UpdateErrors drains retryable failures of a schedule back into the
// runnable set: slots in a retryable error status with retry budget
// left, not expired, whose retry delay has elapsed (or that never
// finished) get status StatusAdd, one more retry consumed, and their
// diagnostics cleared.  Returns the drained slots, newest worktime
// first.
func (p *Planner) UpdateErrors(name string, maxRetries int, retryDelay time.Duration) ([]workplan.Workplan, error) {
	var drained []workplan.Workplan
	err := p.store.Transaction(func(tx workplan.Store) error {
		var err error
		drained, err = p.updateErrors(tx, name, maxRetries, retryDelay)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

// CheckExpiration sweeps all schedules: every non-terminal slot whose
// expiry has passed becomes StatusError with Info set to
// workplan.InfoExpired.  Returns the affected slots.
func (p *Planner) CheckExpiration() ([]workplan.Workplan, error) {
	return p.checkExpiration(p.store)
}

// ClearLost resets slots stuck in an in-flight status back to
// StatusAdd.  This reclaims work lost at the previous shutdown; it is
// an opt-in start-up action, never run automatically.
func (p *Planner) ClearLost() ([]workplan.Workplan, error) {
	return p.clearLost(p.store)
}

// ExecuteList returns the schedule's runnable set: slots with status
// StatusAdd that are not expired, newest worktime first.
func (p *Planner) ExecuteList(name string) ([]workplan.Workplan, error) {
	return p.executeList(p.store, name)
}

// Run re-queues a single slot by id: status back to StatusAdd, one
// more retry consumed, diagnostics cleared.  Returns nil without
// error if no such slot exists.
func (p *Planner) Run(id uuid.UUID) (*workplan.Workplan, error) {
	return p.run(p.store, id)
}

// Update applies a partial update to the slot the document
// identifies.  Returns nil without error if the slot does not exist.
func (p *Planner) Update(u workplan.Update) (*workplan.Workplan, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return p.applyUpdate(p.store, u)
}

// ManyUpdate applies a batch of partial updates inside a single
// nested scope, so either the whole batch commits or none of it.
// Returns how many slots were actually updated.
func (p *Planner) ManyUpdate(updates []workplan.Update) (int, error) {
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return 0, err
		}
	}
	count := 0
	err := p.store.Transaction(func(tx workplan.Store) error {
		for _, u := range updates {
			wp, err := p.applyUpdate(tx, u)
			if err != nil {
				return err
			}
			if wp != nil {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
