// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package planner

import (
	"sort"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// replayPatch is the reset applied when a slot goes back into the
// runnable set: one more retry consumed, diagnostics cleared.
func replayPatch() workplan.Patch {
	status := workplan.StatusAdd
	return workplan.Patch{
		Status:        &status,
		AddRetries:    1,
		ClearInfo:     true,
		ClearDuration: true,
	}
}

func (p *Planner) isAllowedExecute(s workplan.Store, name, hash string, maxFatalErrors int) (bool, error) {
	last, err := s.Last(name)
	if err != nil {
		return false, err
	}
	if last == nil || last.Hash != hash {
		// No history, or the job definition changed: the breaker
		// resets.
		return true, nil
	}
	count, err := s.Count(workplan.Query{Where: workplan.And{
		workplan.ByName(name),
		workplan.Cond{Field: workplan.FieldHash, Op: workplan.OpEqual, Value: hash},
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpEqual, Value: workplan.StatusFatalError},
	}})
	if err != nil {
		return false, err
	}
	allowed := count < maxFatalErrors
	if !allowed {
		p.log.WithFields(logrus.Fields{
			"name":         name,
			"fatal_errors": count,
		}).Info("Too many fatal errors, schedule suspended")
	}
	return allowed, nil
}

func (p *Planner) updateErrors(s workplan.Store, name string, maxRetries int, retryDelay time.Duration) ([]workplan.Workplan, error) {
	now := p.now()
	candidates, err := s.Select(workplan.Query{Where: workplan.And{
		workplan.ByName(name),
		workplan.StatusIn(workplan.ErrorStatuses...),
		workplan.Cond{Field: workplan.FieldRetries, Op: workplan.OpLess, Value: maxRetries},
		workplan.NotExpired(now),
		workplan.Or{
			workplan.Cond{Field: workplan.FieldFinished, Op: workplan.OpEqual, Value: nil},
			workplan.Cond{Field: workplan.FieldFinished, Op: workplan.OpLessOrEqual, Value: now.Add(-retryDelay)},
		},
	}})
	if err != nil || len(candidates) == 0 {
		return nil, err
	}

	worktimes := make([]time.Time, len(candidates))
	for i, wp := range candidates {
		worktimes[i] = wp.Worktime
	}
	drained, err := s.Update(workplan.Query{Where: workplan.And{
		workplan.ByName(name),
		workplan.WorktimeIn(worktimes),
	}}, replayPatch())
	if err != nil {
		return nil, err
	}
	sort.Slice(drained, func(i, j int) bool {
		return drained[i].Worktime.After(drained[j].Worktime)
	})

	p.log.WithFields(logrus.Fields{
		"name":  name,
		"count": len(drained),
	}).Info("Restarted error workplans")
	return drained, nil
}

func (p *Planner) checkExpiration(s workplan.Store) ([]workplan.Workplan, error) {
	status := workplan.StatusError
	info := workplan.InfoExpired
	expired, err := s.Update(workplan.Query{Where: workplan.And{
		workplan.IsExpired(p.now()),
		workplan.StatusNotIn(workplan.TerminalStatuses...),
	}}, workplan.Patch{Status: &status, Info: &info})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		p.log.WithFields(logrus.Fields{
			"count": len(expired),
		}).Info("Expired workplans")
	}
	return expired, nil
}

func (p *Planner) clearLost(s workplan.Store) ([]workplan.Workplan, error) {
	status := workplan.StatusAdd
	lost, err := s.Update(workplan.Query{
		Where: workplan.StatusIn(workplan.RunStatuses...),
	}, workplan.Patch{Status: &status})
	if err != nil {
		return nil, err
	}
	if len(lost) > 0 {
		p.log.WithFields(logrus.Fields{
			"count": len(lost),
		}).Info("Reclaimed lost workplans")
	}
	return lost, nil
}

func (p *Planner) executeList(s workplan.Store, name string) ([]workplan.Workplan, error) {
	return s.Select(workplan.Query{
		Where:   workplan.ForExecute(name, p.now()),
		OrderBy: []workplan.Order{{Field: workplan.FieldWorktime, Descending: true}},
	})
}

func (p *Planner) run(s workplan.Store, id uuid.UUID) (*workplan.Workplan, error) {
	updated, err := s.Update(workplan.Query{Where: workplan.ByID(id)}, replayPatch())
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}
	p.log.WithFields(logrus.Fields{
		"id": id,
	}).Info("Replayed workplan")
	return &updated[0], nil
}

func (p *Planner) applyUpdate(s workplan.Store, u workplan.Update) (*workplan.Workplan, error) {
	updated, err := s.Update(workplan.Query{Where: u.Identity()}, u.Patch())
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, nil
	}
	return &updated[0], nil
}
