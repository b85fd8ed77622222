// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package planner_test

import (
	"testing"
	"time"

	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFirstSlot(t *testing.T) {
	p, store, clk := newPlanner()

	list, err := p.Generate(planner.GenerateRequest{
		Name:      "daily",
		StartTime: now(clk).Add(-90 * time.Minute),
		Interval:  time.Hour,
		Extra:     map[string]interface{}{"cmd": "report"},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	// The first slot lands on the grid boundary before now, not on
	// the raw start time
	assert.Equal(t, now(clk).Add(-30*time.Minute), list[0].Worktime)
	assert.Equal(t, workplan.StatusAdd, list[0].Status)
	assert.Equal(t, map[string]interface{}{"cmd": "report"}, list[0].Data)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("daily")})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGenerateNextSlot(t *testing.T) {
	p, store, clk := newPlanner()
	req := planner.GenerateRequest{
		Name:      "daily",
		StartTime: now(clk).Add(-90 * time.Minute),
		Interval:  time.Hour,
	}

	list, err := p.Generate(req)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Nothing new is due until an interval passes
	list, err = p.Generate(req)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	clk.Add(time.Hour)
	list, err = p.Generate(req)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest worktime first
	assert.True(t, list[0].Worktime.After(list[1].Worktime))

	count, err := store.Count(workplan.Query{Where: workplan.ByName("daily")})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGenerateKeepSequence(t *testing.T) {
	p, store, clk := newPlanner()

	list, err := p.Generate(planner.GenerateRequest{
		Name:         "hourly",
		StartTime:    now(clk).Add(-3 * time.Hour),
		Interval:     time.Hour,
		KeepSequence: true,
	})
	require.NoError(t, err)
	assert.Len(t, list, 4)

	// Mark one slot done; regeneration backfills nothing and leaves
	// it alone
	status := workplan.StatusSuccess
	_, err = store.Update(workplan.Query{Where: workplan.And{
		workplan.ByName("hourly"),
		workplan.Cond{Field: workplan.FieldWorktime, Op: workplan.OpEqual, Value: now(clk).Add(-2 * time.Hour)},
	}}, workplan.Patch{Status: &status})
	require.NoError(t, err)

	list, err = p.Generate(planner.GenerateRequest{
		Name:         "hourly",
		StartTime:    now(clk).Add(-3 * time.Hour),
		Interval:     time.Hour,
		KeepSequence: true,
	})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("hourly")})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestGenerateBreakerOpen(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-2 * time.Hour)
	for i := 0; i < 2; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "flaky",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Hash:     "h1",
			Status:   workplan.StatusFatalError,
		})
	}

	// Breaker open: the runnable set comes back but nothing mutates
	list, err := p.Generate(planner.GenerateRequest{
		Name:           "flaky",
		StartTime:      base,
		Interval:       time.Hour,
		Hash:           "h1",
		MaxFatalErrors: 2,
	})
	require.NoError(t, err)
	assert.Len(t, list, 0)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("flaky")})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A changed hash resets the breaker and scheduling resumes
	list, err = p.Generate(planner.GenerateRequest{
		Name:           "flaky",
		StartTime:      base,
		Interval:       time.Hour,
		Hash:           "h2",
		MaxFatalErrors: 2,
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerateDefaultBreakerThreshold(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 2; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "shaky",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   workplan.StatusFatalError,
		})
	}

	// Two fatal errors are under the default threshold; the next
	// slot is still created
	req := planner.GenerateRequest{
		Name:      "shaky",
		StartTime: base,
		Interval:  time.Hour,
	}
	list, err := p.Generate(req)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// The third failure opens the breaker even with no threshold
	// set on the request
	status := workplan.StatusFatalError
	_, err = store.Update(workplan.Query{
		Where: workplan.ByName("shaky"),
	}, workplan.Patch{Status: &status})
	require.NoError(t, err)

	clk.Add(time.Hour)
	list, err = p.Generate(req)
	require.NoError(t, err)
	assert.Len(t, list, 0)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("shaky")})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGenerateRetryDrain(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-2 * time.Hour)
	insert(t, store, workplan.Workplan{
		Name:     "retry",
		Worktime: base,
		Status:   workplan.StatusError,
		Finished: now(clk).Add(-time.Hour),
		Info:     "boom",
	})

	list, err := p.Generate(planner.GenerateRequest{
		Name:       "retry",
		StartTime:  base,
		Interval:   time.Hour,
		MaxRetries: 3,
		RetryDelay: 30 * time.Minute,
	})
	require.NoError(t, err)
	// The failed slot is back in the runnable set alongside the
	// newly created one
	require.Len(t, list, 2)

	drained, err := store.ByKey("retry", base)
	require.NoError(t, err)
	assert.Equal(t, workplan.StatusAdd, drained.Status)
	assert.Equal(t, 1, drained.Retries)
}

func TestGenerateExpirySweep(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-2 * time.Hour)
	insert(t, store, workplan.Workplan{
		Name:     "expiring",
		Worktime: base,
		Expires:  now(clk).Add(-time.Minute),
	})

	list, err := p.Generate(planner.GenerateRequest{
		Name:      "expiring",
		StartTime: base,
		Interval:  time.Hour,
	})
	require.NoError(t, err)
	// Only the fresh slot is runnable; the expired one was swept
	require.Len(t, list, 1)

	swept, err := store.ByKey("expiring", base)
	require.NoError(t, err)
	assert.Equal(t, workplan.StatusError, swept.Status)
	assert.Equal(t, workplan.InfoExpired, swept.Info)
}

func TestGenerateBackRestarts(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "window",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   workplan.StatusSuccess,
		})
	}

	clk.Add(time.Hour)
	list, err := p.Generate(planner.GenerateRequest{
		Name:         "window",
		StartTime:    base,
		Interval:     time.Hour,
		BackRestarts: workplan.OffsetPeriods{-1, -2},
	})
	require.NoError(t, err)
	// One new slot plus the two replayed trailing slots
	require.Len(t, list, 3)

	count, err := store.Count(workplan.Query{Where: workplan.And{
		workplan.ByName("window"),
		workplan.StatusIn(workplan.StatusAdd),
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGenerateChildren(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-2 * time.Hour)
	statuses := []workplan.Status{
		workplan.StatusSuccess, workplan.StatusError, workplan.StatusSuccess,
	}
	for i, status := range statuses {
		insert(t, store, workplan.Workplan{
			Name:     "parent",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   status,
		})
	}

	list, err := p.Generate(planner.GenerateRequest{
		Name:          "child",
		ParentName:    "parent",
		StatusTrigger: workplan.StatusSuccess,
		Extra:         map[string]interface{}{"stage": "derived"},
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, wp := range list {
		assert.Equal(t, "child", wp.Name)
		assert.Equal(t, map[string]interface{}{"stage": "derived"}, wp.Data)
	}

	// Re-running creates nothing further
	list, err = p.Generate(planner.GenerateRequest{
		Name:          "child",
		ParentName:    "parent",
		StatusTrigger: workplan.StatusSuccess,
	})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGenerateChildWorkplansStream(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 4; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "parent",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   workplan.StatusSuccess,
		})
	}
	// One child already exists and is skipped
	insert(t, store, workplan.Workplan{Name: "child", Worktime: base})

	var seen []workplan.Workplan
	err := p.GenerateChildWorkplans(planner.ChildRequest{
		Name:       "child",
		ParentName: "parent",
		Trigger:    workplan.StatusSuccess,
	}, func(wp *workplan.Workplan) error {
		seen = append(seen, *wp)
		if len(seen) == 2 {
			return workplan.ErrStopIteration
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, base.Add(time.Hour), seen[0].Worktime)
	assert.Equal(t, base.Add(2*time.Hour), seen[1].Worktime)

	// Early stop still commits what was created
	count, err := store.Count(workplan.Query{Where: workplan.ByName("child")})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGenerateChildWorkplansRollback(t *testing.T) {
	p, store, clk := newPlanner()
	insert(t, store, workplan.Workplan{
		Name:     "parent",
		Worktime: now(clk).Add(-time.Hour),
		Status:   workplan.StatusSuccess,
	})

	boom := assert.AnError
	err := p.GenerateChildWorkplans(planner.ChildRequest{
		Name:       "child",
		ParentName: "parent",
		Trigger:    workplan.StatusSuccess,
	}, func(wp *workplan.Workplan) error {
		return boom
	})
	assert.Equal(t, boom, err)

	// Any other error rolls the whole scope back
	count, err := store.Count(workplan.Query{Where: workplan.ByName("child")})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGenerateValidation(t *testing.T) {
	p, _, clk := newPlanner()

	_, err := p.Generate(planner.GenerateRequest{
		StartTime: now(clk), Interval: time.Hour,
	})
	assert.Equal(t, workplan.ErrNoName, err)

	_, err = p.Generate(planner.GenerateRequest{
		Name: "bad", StartTime: now(clk),
	})
	assert.Error(t, err)

	_, err = p.Generate(planner.GenerateRequest{
		Name: "bad", Interval: time.Hour,
	})
	assert.Equal(t, workplan.ErrNoStartTime, err)

	_, err = p.Generate(planner.GenerateRequest{
		Name: "bad", StartTime: now(clk), Interval: time.Hour,
		BackRestarts: workplan.OffsetPeriods{1},
	})
	assert.Equal(t, workplan.ErrBadOffsetPeriods, err)

	_, err = p.Generate(planner.GenerateRequest{
		Name: "bad", ParentName: "parent", StatusTrigger: workplan.Status(99),
	})
	assert.Error(t, err)
}
