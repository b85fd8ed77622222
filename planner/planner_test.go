// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package planner_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/memory"
	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPlanner builds an engine over a fresh in-memory store with the
// mock clock pinned to a known instant.
func newPlanner() (*planner.Planner, workplan.Store, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2022, time.November, 11, 11, 11, 11, 0, time.UTC))
	store := memory.NewWithClock(clk)
	return planner.NewWithClock(store, clk), store, clk
}

func now(clk *clock.Mock) time.Time {
	return workplan.UTC(clk.Now())
}

func insert(t *testing.T, store workplan.Store, wp workplan.Workplan) *workplan.Workplan {
	created, err := store.Insert(&wp)
	require.NoError(t, err)
	return created
}

func TestIsCreateNext(t *testing.T) {
	p, store, clk := newPlanner()

	// No slots yet: nothing to extend
	due, err := p.IsCreateNext("daily", time.Hour)
	require.NoError(t, err)
	assert.False(t, due)

	insert(t, store, workplan.Workplan{Name: "daily", Worktime: now(clk).Add(-30 * time.Minute)})
	due, err = p.IsCreateNext("daily", time.Hour)
	require.NoError(t, err)
	assert.False(t, due)

	clk.Add(30 * time.Minute)
	due, err = p.IsCreateNext("daily", time.Hour)
	require.NoError(t, err)
	assert.True(t, due)

	_, err = p.IsCreateNext("daily", 0)
	assert.Error(t, err)
}

func TestNextWorktime(t *testing.T) {
	p, store, clk := newPlanner()

	next, err := p.NextWorktime("daily", time.Hour)
	require.NoError(t, err)
	assert.True(t, next.IsZero())

	last := insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: now(clk).Add(-150 * time.Minute),
	})
	next, err = p.NextWorktime("daily", time.Hour)
	require.NoError(t, err)
	// Snapped to the most recent boundary, not simply last+step
	assert.Equal(t, last.Worktime.Add(2*time.Hour), next)
}

func TestCreateNextOrNone(t *testing.T) {
	p, store, clk := newPlanner()
	last := insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: now(clk).Add(-2 * time.Hour),
	})

	created, err := p.CreateNextOrNone("daily", time.Hour, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, last.Worktime.Add(2*time.Hour), created.Worktime)
	assert.Equal(t, workplan.StatusAdd, created.Status)
	assert.Equal(t, map[string]interface{}{"k": "v"}, created.Data)

	// Immediately after, nothing further is due
	created, err = p.CreateNextOrNone("daily", time.Hour, nil)
	require.NoError(t, err)
	assert.Nil(t, created)
}

func TestCreateNextAlreadyPresent(t *testing.T) {
	p, store, clk := newPlanner()
	last := insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: now(clk).Add(-time.Hour),
	})
	// Someone else already created the due slot
	insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: last.Worktime.Add(time.Hour),
		Status:   workplan.StatusRun,
	})

	created, err := p.CreateNextOrNone("daily", time.Hour, nil)
	require.NoError(t, err)
	assert.Nil(t, created)
}

func TestFillMissing(t *testing.T) {
	p, store, clk := newPlanner()
	start := now(clk).Add(-4 * time.Hour)
	insert(t, store, workplan.Workplan{Name: "daily", Worktime: start.Add(time.Hour)})
	insert(t, store, workplan.Workplan{Name: "daily", Worktime: start.Add(3 * time.Hour)})

	created, err := p.FillMissing("daily", time.Hour, start, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, created, 3)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("daily")})
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Idempotent: a second pass creates nothing
	created, err = p.FillMissing("daily", time.Hour, start, time.Time{}, nil)
	require.NoError(t, err)
	assert.Len(t, created, 0)
}

func TestFillMissingExplicitEnd(t *testing.T) {
	p, store, clk := newPlanner()
	start := now(clk).Add(-5 * time.Hour)

	created, err := p.FillMissing("daily", time.Hour, start, start.Add(2*time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, created, 3)

	count, err := store.Count(workplan.Query{Where: workplan.ByName("daily")})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRecreatePrev(t *testing.T) {
	p, store, clk := newPlanner()
	start := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 4; i++ {
		status := workplan.StatusSuccess
		insert(t, store, workplan.Workplan{
			Name:     "daily",
			Worktime: start.Add(time.Duration(i) * time.Hour),
			Status:   status,
			Info:     "finished",
		})
	}

	created, err := p.RecreatePrev("daily", workplan.OffsetPeriods{-1, -2}, time.Hour, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
	// The anchor is the latest boundary; -1 and -2 are the two slots
	// before it, recreated with default status
	assert.Equal(t, start.Add(time.Hour), created[0].Worktime)
	assert.Equal(t, start.Add(2*time.Hour), created[1].Worktime)
	for _, wp := range created {
		assert.Equal(t, workplan.StatusAdd, wp.Status)
		assert.Equal(t, "", wp.Info)
	}

	count, err := store.Count(workplan.Query{Where: workplan.ByName("daily")})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestRecreatePrevBeforeFirst(t *testing.T) {
	p, store, clk := newPlanner()
	first := insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: now(clk).Add(-time.Hour),
		Status:   workplan.StatusSuccess,
	})

	// Offsets reaching before the first slot are dropped
	created, err := p.RecreatePrev("daily", workplan.OffsetPeriods{-1, -5}, time.Hour, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, first.Worktime, created[0].Worktime)

	// No schedule at all: quietly nothing
	created, err = p.RecreatePrev("nonesuch", workplan.OffsetPeriods{-1}, time.Hour, time.Time{}, nil)
	require.NoError(t, err)
	assert.Nil(t, created)

	// Invalid offsets are rejected up front
	_, err = p.RecreatePrev("daily", workplan.OffsetPeriods{1}, time.Hour, time.Time{}, nil)
	assert.Equal(t, workplan.ErrBadOffsetPeriods, err)
}

func TestIsAllowedExecute(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "flaky",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Hash:     "h1",
			Status:   workplan.StatusFatalError,
		})
	}

	// No history at all: allowed
	allowed, err := p.IsAllowedExecute("nonesuch", "h1", 2)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Three fatal errors with this hash: breaker open
	allowed, err = p.IsAllowedExecute("flaky", "h1", 2)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Generous threshold: still allowed
	allowed, err = p.IsAllowedExecute("flaky", "h1", 10)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Changed job definition resets the breaker
	allowed, err = p.IsAllowedExecute("flaky", "h2", 2)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUpdateErrors(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-4 * time.Hour)
	finishedLongAgo := now(clk).Add(-time.Hour)
	finishedJustNow := now(clk)

	// Eligible: error status, retries left, cooled down
	insert(t, store, workplan.Workplan{
		Name: "retry", Worktime: base,
		Status: workplan.StatusError, Finished: finishedLongAgo,
		Info: "boom", Duration: 9,
	})
	// Eligible: never finished
	insert(t, store, workplan.Workplan{
		Name: "retry", Worktime: base.Add(time.Hour),
		Status: workplan.StatusError,
	})
	// Not eligible: still cooling down
	insert(t, store, workplan.Workplan{
		Name: "retry", Worktime: base.Add(2 * time.Hour),
		Status: workplan.StatusError, Finished: finishedJustNow,
	})
	// Not eligible: retry budget exhausted
	insert(t, store, workplan.Workplan{
		Name: "retry", Worktime: base.Add(3 * time.Hour),
		Status: workplan.StatusError, Retries: 3, Finished: finishedLongAgo,
	})
	// Not eligible: fatal
	insert(t, store, workplan.Workplan{
		Name: "retry", Worktime: base.Add(4 * time.Hour),
		Status: workplan.StatusFatalError, Finished: finishedLongAgo,
	})

	drained, err := p.UpdateErrors("retry", 3, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	// Newest worktime first
	assert.Equal(t, base.Add(time.Hour), drained[0].Worktime)
	assert.Equal(t, base, drained[1].Worktime)
	for _, wp := range drained {
		assert.Equal(t, workplan.StatusAdd, wp.Status)
		assert.Equal(t, 1, wp.Retries)
		assert.Equal(t, "", wp.Info)
		assert.Equal(t, 0, wp.Duration)
	}

	// Nothing eligible: no-op
	drained, err = p.UpdateErrors("retry", 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, drained)
}

func TestCheckExpiration(t *testing.T) {
	p, store, clk := newPlanner()
	past := now(clk).Add(-time.Minute)
	future := now(clk).Add(time.Hour)

	expired := insert(t, store, workplan.Workplan{
		Name: "expiry", Worktime: now(clk).Add(-3 * time.Hour),
		Status: workplan.StatusRun, Expires: past,
	})
	insert(t, store, workplan.Workplan{
		Name: "expiry", Worktime: now(clk).Add(-2 * time.Hour),
		Status: workplan.StatusSuccess, Expires: past,
	})
	insert(t, store, workplan.Workplan{
		Name: "expiry", Worktime: now(clk).Add(-time.Hour),
		Status: workplan.StatusAdd, Expires: future,
	})
	insert(t, store, workplan.Workplan{
		Name: "expiry", Worktime: now(clk),
		Status: workplan.StatusAdd,
	})

	swept, err := p.CheckExpiration()
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, expired.ID, swept[0].ID)
	assert.Equal(t, workplan.StatusError, swept[0].Status)
	assert.Equal(t, workplan.InfoExpired, swept[0].Info)

	// Terminal slots were left alone
	wp, err := store.ByKey("expiry", now(clk).Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, workplan.StatusSuccess, wp.Status)
}

func TestClearLost(t *testing.T) {
	p, store, clk := newPlanner()
	insert(t, store, workplan.Workplan{
		Name: "lost", Worktime: now(clk).Add(-2 * time.Hour),
		Status: workplan.StatusQueue,
	})
	insert(t, store, workplan.Workplan{
		Name: "lost", Worktime: now(clk).Add(-time.Hour),
		Status: workplan.StatusRun,
	})
	insert(t, store, workplan.Workplan{
		Name: "lost", Worktime: now(clk),
		Status: workplan.StatusSuccess,
	})

	lost, err := p.ClearLost()
	require.NoError(t, err)
	assert.Len(t, lost, 2)
	for _, wp := range lost {
		assert.Equal(t, workplan.StatusAdd, wp.Status)
	}
}

func TestExecuteList(t *testing.T) {
	p, store, clk := newPlanner()
	base := now(clk).Add(-3 * time.Hour)
	insert(t, store, workplan.Workplan{Name: "exec", Worktime: base})
	insert(t, store, workplan.Workplan{Name: "exec", Worktime: base.Add(time.Hour)})
	insert(t, store, workplan.Workplan{
		Name: "exec", Worktime: base.Add(2 * time.Hour),
		Status: workplan.StatusRun,
	})
	insert(t, store, workplan.Workplan{
		Name: "exec", Worktime: base.Add(3 * time.Hour),
		Expires: now(clk).Add(-time.Second),
	})

	list, err := p.ExecuteList("exec")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, base.Add(time.Hour), list[0].Worktime)
	assert.Equal(t, base, list[1].Worktime)
}

func TestRun(t *testing.T) {
	p, store, clk := newPlanner()
	created := insert(t, store, workplan.Workplan{
		Name: "replay", Worktime: now(clk),
		Status: workplan.StatusFatalError, Info: "gave up", Duration: 40,
	})

	replayed, err := p.Run(created.ID)
	require.NoError(t, err)
	require.NotNil(t, replayed)
	assert.Equal(t, workplan.StatusAdd, replayed.Status)
	assert.Equal(t, 1, replayed.Retries)
	assert.Equal(t, "", replayed.Info)
	assert.Equal(t, 0, replayed.Duration)

	missing, err := p.Run(uuid.NewV4())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdate(t *testing.T) {
	p, store, clk := newPlanner()
	created := insert(t, store, workplan.Workplan{Name: "update", Worktime: now(clk)})

	status := workplan.StatusSuccess
	duration := 12
	finished := now(clk)
	updated, err := p.Update(workplan.Update{
		Name:     "update",
		Worktime: created.Worktime,
		Status:   &status,
		Duration: &duration,
		Finished: &finished,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, workplan.StatusSuccess, updated.Status)
	assert.Equal(t, 12, updated.Duration)
	assert.Equal(t, finished, updated.Finished)

	// Unknown target: nil, no error
	updated, err = p.Update(workplan.Update{Name: "update", Worktime: now(clk).Add(time.Hour)})
	require.NoError(t, err)
	assert.Nil(t, updated)

	// Missing identity: rejected
	_, err = p.Update(workplan.Update{Name: "update"})
	assert.Equal(t, workplan.ErrNoIdentity, err)
}

func TestManyUpdate(t *testing.T) {
	p, store, clk := newPlanner()
	a := insert(t, store, workplan.Workplan{Name: "many", Worktime: now(clk).Add(-time.Hour)})
	b := insert(t, store, workplan.Workplan{Name: "many", Worktime: now(clk)})

	status := workplan.StatusQueue
	count, err := p.ManyUpdate([]workplan.Update{
		{ID: a.ID, Status: &status},
		{ID: b.ID, Status: &status},
		{Name: "many", Worktime: now(clk).Add(time.Hour), Status: &status},
	})
	require.NoError(t, err)
	// The third update matched nothing
	assert.Equal(t, 2, count)

	_, err = p.ManyUpdate([]workplan.Update{{Name: "many"}})
	assert.Equal(t, workplan.ErrNoIdentity, err)
}
