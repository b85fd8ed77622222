// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package planner

import (
	"time"

	"github.com/diffeo/go-workplanner/interval"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/sirupsen/logrus"
)

// The internal forms of the schedule-expansion operations all take
// the store explicitly so they can run against either the engine's
// store or an enclosing transactional scope.

func (p *Planner) isCreateNext(s workplan.Store, name string, step time.Duration) (bool, error) {
	if step <= 0 {
		return false, interval.ErrNonPositiveStep
	}
	last, err := s.Last(name)
	if err != nil || last == nil {
		return false, err
	}
	return p.now().Sub(last.Worktime) >= step, nil
}

func (p *Planner) nextWorktime(s workplan.Store, name string, step time.Duration) (time.Time, error) {
	last, err := s.Last(name)
	if err != nil || last == nil {
		return time.Time{}, err
	}
	return interval.SnapBack(last.Worktime, p.now(), step)
}

func (p *Planner) createNextOrNone(s workplan.Store, name string, step time.Duration, data map[string]interface{}) (*workplan.Workplan, error) {
	due, err := p.isCreateNext(s, name, step)
	if err != nil || !due {
		return nil, err
	}
	next, err := p.nextWorktime(s, name, step)
	if err != nil {
		return nil, err
	}
	created, err := s.Insert(&workplan.Workplan{
		Name:     name,
		Worktime: next,
		Data:     data,
	})
	if err == workplan.ErrWorkplanExists {
		// Another caller raced us to this worktime; that is fine.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"name":     name,
		"worktime": next,
		"id":       created.ID,
	}).Info("Created next workplan")
	return created, nil
}

func (p *Planner) fillMissing(s workplan.Store, name string, step time.Duration, start, end time.Time, data map[string]interface{}) ([]workplan.Workplan, error) {
	if end.IsZero() {
		end = p.now()
	}
	existing, err := s.Worktimes(name)
	if err != nil {
		return nil, err
	}
	it, err := interval.Iter(workplan.UTC(start), workplan.UTC(end), step)
	if err != nil {
		return nil, err
	}

	var created []workplan.Workplan
	for {
		worktime, ok := it.Next()
		if !ok {
			break
		}
		if _, present := existing[worktime]; present {
			continue
		}
		wp, err := s.Insert(&workplan.Workplan{
			Name:     name,
			Worktime: worktime,
			Data:     data,
		})
		if err == workplan.ErrWorkplanExists {
			continue
		}
		if err != nil {
			return nil, err
		}
		p.log.WithFields(logrus.Fields{
			"name":     name,
			"worktime": worktime,
			"id":       wp.ID,
		}).Info("Created missing workplan")
		created = append(created, *wp)
	}
	return created, nil
}

func (p *Planner) recreatePrev(s workplan.Store, name string, offsets workplan.OffsetPeriods, step time.Duration, from time.Time, data map[string]interface{}) ([]workplan.Workplan, error) {
	if err := offsets.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, interval.ErrNonPositiveStep
	}

	first, err := s.First(name)
	if err != nil || first == nil {
		return nil, err
	}

	anchor := workplan.UTC(from)
	if anchor.IsZero() {
		anchor, err = interval.SnapBack(first.Worktime, p.now(), step)
		if err != nil {
			return nil, err
		}
	}

	var targets []time.Time
	for _, offset := range offsets {
		target := anchor.Add(step * time.Duration(offset))
		if target.Before(first.Worktime) {
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	_, err = s.Delete(workplan.Query{Where: workplan.And{
		workplan.ByName(name),
		workplan.WorktimeIn(targets),
	}})
	if err != nil {
		return nil, err
	}

	runs, err := interval.GroupContiguous(targets, step)
	if err != nil {
		return nil, err
	}
	var created []workplan.Workplan
	for _, run := range runs {
		batch, err := p.fillMissing(s, name, step, run.First, run.Last, data)
		if err != nil {
			return nil, err
		}
		created = append(created, batch...)
	}

	p.log.WithFields(logrus.Fields{
		"name":  name,
		"count": len(created),
	}).Info("Recreated workplans")
	return created, nil
}
