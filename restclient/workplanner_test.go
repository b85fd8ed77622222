// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restclient

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/memory"
	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/restdata"
	"github.com/diffeo/go-workplanner/restserver"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClient runs a full client/server round trip against an in-memory
// backend.
func newClient(t *testing.T) (*Client, workplan.Store, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2022, time.November, 11, 11, 11, 11, 0, time.UTC))
	store := memory.NewWithClock(clk)
	srv := httptest.NewServer(restserver.NewRouter(planner.NewWithClock(store, clk), store))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c, store, clk
}

func now(clk *clock.Mock) time.Time {
	return workplan.UTC(clk.Now())
}

func insert(t *testing.T, store workplan.Store, wp workplan.Workplan) workplan.Workplan {
	created, err := store.Insert(&wp)
	require.NoError(t, err)
	return *created
}

func TestClientGenerateAndExecute(t *testing.T) {
	c, _, clk := newClient(t)

	list, err := c.Generate(restdata.GenerateRequest{
		Name:      "daily",
		StartTime: now(clk).Add(-90 * time.Minute),
		Interval:  time.Hour,
		Extra:     restdata.DataDict{"cmd": "report"},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, workplan.StatusAdd, list[0].Status)
	assert.Equal(t, map[string]interface{}{"cmd": "report"}, list[0].Data)

	list, err = c.ExecuteList("daily")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, now(clk).Add(-30*time.Minute), list[0].Worktime)
}

func TestClientListCountDelete(t *testing.T) {
	c, store, clk := newClient(t)
	base := now(clk).Add(-2 * time.Hour)
	for i := 0; i < 3; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "etl",
			Worktime: base.Add(time.Duration(i) * time.Hour),
		})
	}

	filter := workplan.Filter{
		Filter: map[string][]workplan.Clause{
			"name": {{Value: "etl"}},
		},
		OrderBy: []string{"-worktime_utc"},
	}
	list, err := c.List(filter)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, base.Add(2*time.Hour), list[0].Worktime)

	count, err := c.Count(filter)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	deleted, err := c.Delete(filter)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	count, err = c.Count(filter)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClientUpdate(t *testing.T) {
	c, store, clk := newClient(t)
	worktime := now(clk).Add(-time.Hour)
	insert(t, store, workplan.Workplan{Name: "daily", Worktime: worktime})

	success := "success"
	wp, err := c.Update(restdata.UpdateRequest{
		Name:     "daily",
		Worktime: &worktime,
		Status:   &success,
	})
	require.NoError(t, err)
	require.NotNil(t, wp)
	assert.Equal(t, workplan.StatusSuccess, wp.Status)

	// A missing workplan is absence, not an error
	missing := now(clk).Add(-30 * time.Minute)
	wp, err = c.Update(restdata.UpdateRequest{
		Name:     "daily",
		Worktime: &missing,
		Status:   &success,
	})
	require.NoError(t, err)
	assert.Nil(t, wp)

	// Validation errors round-trip as the same error value
	_, err = c.Update(restdata.UpdateRequest{Status: &success})
	assert.Equal(t, workplan.ErrNoIdentity, err)
}

func TestClientManyUpdate(t *testing.T) {
	c, store, clk := newClient(t)
	t0 := now(clk).Add(-2 * time.Hour)
	t1 := now(clk).Add(-time.Hour)
	insert(t, store, workplan.Workplan{Name: "daily", Worktime: t0})
	insert(t, store, workplan.Workplan{Name: "daily", Worktime: t1})

	queue := "queue"
	count, err := c.ManyUpdate([]restdata.UpdateRequest{
		{Name: "daily", Worktime: &t0, Status: &queue},
		{Name: "daily", Worktime: &t1, Status: &queue},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClientReplay(t *testing.T) {
	c, store, clk := newClient(t)
	wp := insert(t, store, workplan.Workplan{
		Name:     "daily",
		Worktime: now(clk).Add(-time.Hour),
		Status:   workplan.StatusError,
		Info:     "boom",
	})

	replayed, err := c.Replay(wp.ID)
	require.NoError(t, err)
	require.NotNil(t, replayed)
	assert.Equal(t, workplan.StatusAdd, replayed.Status)
	assert.Equal(t, 1, replayed.Retries)
	assert.Empty(t, replayed.Info)

	replayed, err = c.Replay(uuid.NewV4())
	require.NoError(t, err)
	assert.Nil(t, replayed)
}

func TestClientRecreate(t *testing.T) {
	c, store, clk := newClient(t)
	base := now(clk).Add(-3 * time.Hour)
	for i := 0; i < 4; i++ {
		insert(t, store, workplan.Workplan{
			Name:     "window",
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   workplan.StatusSuccess,
		})
	}

	list, err := c.Recreate(restdata.RecreateRequest{
		Name:          "window",
		OffsetPeriods: 2,
		Interval:      time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, wp := range list {
		assert.Equal(t, workplan.StatusAdd, wp.Status)
	}
}

func TestClientEscapedScheduleName(t *testing.T) {
	c, store, clk := newClient(t)
	insert(t, store, workplan.Workplan{
		Name:     "etl/hourly",
		Worktime: now(clk).Add(-time.Hour),
	})

	list, err := c.ExecuteList("etl/hourly")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "etl/hourly", list[0].Name)
}

func TestClientBadRoot(t *testing.T) {
	_, err := New("http://localhost:1/") // nothing listens here
	assert.Error(t, err)
}
