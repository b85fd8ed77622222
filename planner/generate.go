// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package planner

import (
	"time"

	"github.com/diffeo/go-workplanner/interval"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/sirupsen/logrus"
)

// DefaultMaxFatalErrors is the circuit-breaker threshold applied when
// a generate request does not set one.  Without a default, a fresh
// schedule (no hash, threshold zero) would trip the breaker on its
// own first slot and never schedule again.
const DefaultMaxFatalErrors = 3

// GenerateRequest carries the parameters of one Generate() call for
// one schedule.
type GenerateRequest struct {
	// Name is the schedule to generate slots for.
	Name string

	// StartTime anchors the schedule's interval grid.
	StartTime time.Time

	// Interval is the spacing between slots.
	Interval time.Duration

	// KeepSequence requests backfill: every missing slot between
	// StartTime and now is created, not just the next due one.
	KeepSequence bool

	// MaxRetries and RetryDelay parameterize the retry drain.
	MaxRetries int
	RetryDelay time.Duration

	// Hash fingerprints the job definition; MaxFatalErrors is the
	// circuit-breaker threshold for that fingerprint.  Zero or
	// negative means DefaultMaxFatalErrors.
	Hash           string
	MaxFatalErrors int

	// BackRestarts, if non-empty, replays the given past slots
	// whenever a new next slot was created.
	BackRestarts workplan.OffsetPeriods

	// Extra is the payload stored on every slot this call creates.
	Extra map[string]interface{}

	// ParentName switches the schedule to dependency-driven
	// generation: a slot is created per parent slot whose status
	// equals StatusTrigger, and nothing else happens.
	ParentName    string
	StatusTrigger workplan.Status
}

// Validate checks the request before any storage access.
func (req GenerateRequest) Validate() error {
	if req.Name == "" {
		return workplan.ErrNoName
	}
	if len(req.Name) > workplan.MaxNameLength {
		return workplan.ErrNameTooLong
	}
	if req.ParentName != "" {
		if _, err := req.StatusTrigger.MarshalText(); err != nil {
			return workplan.ErrNoSuchStatus{Status: req.StatusTrigger.String()}
		}
		return nil
	}
	if req.Interval <= 0 {
		return interval.ErrNonPositiveStep
	}
	if req.StartTime.IsZero() {
		return workplan.ErrNoStartTime
	}
	if req.BackRestarts != nil {
		return req.BackRestarts.Validate()
	}
	return nil
}

// Generate is the top-level scheduling entry point, run for a
// schedule on every scheduler tick.  Under one nested transactional
// scope it:
//
//  1. generates child slots from the parent schedule, if the request
//     names one, and does nothing else; or
//  2. leaves the schedule untouched when the fatal-error circuit
//     breaker is open; or
//  3. creates the first or next due slot (backfilling the whole grid
//     when KeepSequence is set, replaying BackRestarts after a next
//     slot appears), drains retryable errors, and sweeps expiries.
//
// It returns the schedule's runnable set, newest worktime first.
func (p *Planner) Generate(req GenerateRequest) ([]workplan.Workplan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MaxFatalErrors <= 0 {
		req.MaxFatalErrors = DefaultMaxFatalErrors
	}

	var out []workplan.Workplan
	err := p.store.Transaction(func(tx workplan.Store) error {
		if req.ParentName != "" {
			err := p.generateChildren(tx, childRequest(req), nil)
			if err != nil {
				return err
			}
		} else {
			err := p.generateSchedule(tx, req)
			if err != nil {
				return err
			}
		}
		var err error
		out, err = p.executeList(tx, req.Name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Planner) generateSchedule(s workplan.Store, req GenerateRequest) error {
	allowed, err := p.isAllowedExecute(s, req.Name, req.Hash, req.MaxFatalErrors)
	if err != nil || !allowed {
		return err
	}

	if req.KeepSequence {
		_, err = p.fillMissing(s, req.Name, req.Interval, req.StartTime, time.Time{}, req.Extra)
		if err != nil {
			return err
		}
	} else {
		exists, err := s.Exists(req.Name)
		if err != nil {
			return err
		}
		if !exists {
			worktime, err := interval.SnapBack(workplan.UTC(req.StartTime), p.now(), req.Interval)
			if err != nil {
				return err
			}
			first, err := s.Insert(&workplan.Workplan{
				Name:     req.Name,
				Worktime: worktime,
				Data:     req.Extra,
			})
			if err != nil && err != workplan.ErrWorkplanExists {
				return err
			}
			if err == nil {
				p.log.WithFields(logrus.Fields{
					"name":     req.Name,
					"worktime": worktime,
					"id":       first.ID,
				}).Info("Created first workplan")
			}
		} else {
			next, err := p.createNextOrNone(s, req.Name, req.Interval, req.Extra)
			if err != nil {
				return err
			}
			if next != nil && len(req.BackRestarts) > 0 {
				// A fresh slot appeared, so the data for the
				// trailing past slots is stale; replay them.
				_, err = p.recreatePrev(s, req.Name, req.BackRestarts, req.Interval, time.Time{}, req.Extra)
				if err != nil {
					return err
				}
			}
		}
	}

	_, err = p.updateErrors(s, req.Name, req.MaxRetries, req.RetryDelay)
	if err != nil {
		return err
	}
	_, err = p.checkExpiration(s)
	return err
}

// ChildRequest parameterizes dependency-driven generation: one child
// slot per parent slot in the trigger status.
type ChildRequest struct {
	// Name is the child schedule.
	Name string

	// ParentName is the schedule whose slots drive generation.
	ParentName string

	// Trigger is the parent status that spawns a child.
	Trigger workplan.Status

	// From, if set, ignores parent slots before this worktime.
	From time.Time

	// Data is the payload for created children.
	Data map[string]interface{}
}

func childRequest(req GenerateRequest) ChildRequest {
	return ChildRequest{
		Name:       req.Name,
		ParentName: req.ParentName,
		Trigger:    req.StatusTrigger,
		Data:       req.Extra,
	}
}

// GenerateChildWorkplans creates a child slot at every parent
// worktime whose status equals the trigger and that has no child
// yet, streaming each created slot to f inside a nested scope.
// Returning workplan.ErrStopIteration from f stops early and commits
// what was created; any other error rolls the whole scope back.  A
// nil f collects nothing and creates everything.
func (p *Planner) GenerateChildWorkplans(req ChildRequest, f func(*workplan.Workplan) error) error {
	if req.Name == "" || req.ParentName == "" {
		return workplan.ErrNoName
	}
	if _, err := req.Trigger.MarshalText(); err != nil {
		return workplan.ErrNoSuchStatus{Status: req.Trigger.String()}
	}
	return p.store.Transaction(func(tx workplan.Store) error {
		return p.generateChildren(tx, req, f)
	})
}

func (p *Planner) generateChildren(s workplan.Store, req ChildRequest, f func(*workplan.Workplan) error) error {
	where := workplan.And{
		workplan.ByName(req.ParentName),
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpEqual, Value: req.Trigger},
	}
	if !req.From.IsZero() {
		where = append(where, workplan.Cond{
			Field: workplan.FieldWorktime,
			Op:    workplan.OpMoreOrEqual,
			Value: workplan.UTC(req.From),
		})
	}

	// Materialize the parent worktimes before inserting children, so
	// the scan never observes its own writes.
	parents, err := s.Select(workplan.Query{
		Where:   where,
		OrderBy: []workplan.Order{{Field: workplan.FieldWorktime}},
	})
	if err != nil {
		return err
	}
	existing, err := s.Worktimes(req.Name)
	if err != nil {
		return err
	}

	for _, parent := range parents {
		if _, present := existing[parent.Worktime]; present {
			continue
		}
		child, err := s.Insert(&workplan.Workplan{
			Name:     req.Name,
			Worktime: parent.Worktime,
			Data:     req.Data,
		})
		if err == workplan.ErrWorkplanExists {
			continue
		}
		if err != nil {
			return err
		}
		p.log.WithFields(logrus.Fields{
			"name":     req.Name,
			"parent":   req.ParentName,
			"worktime": child.Worktime,
			"id":       child.ID,
		}).Info("Created child workplan")
		if f == nil {
			continue
		}
		if err := f(child); err != nil {
			if err == workplan.ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}
