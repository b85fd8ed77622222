// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplantest

import (
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

// TestInsertReadBack creates a slot and reads it back by both
// identities.
func (s *Suite) TestInsertReadBack() {
	worktime := s.now().Add(-time.Hour)
	created := s.insert(workplan.Workplan{
		Name:     "insert-read-back",
		Worktime: worktime,
		Hash:     "h1",
		Data:     map[string]interface{}{"key": "value"},
	})
	s.NotEqual(uuid.Nil, created.ID)
	s.Equal(s.now(), created.Created)
	s.Equal(s.now(), created.Updated)
	s.Equal(workplan.StatusAdd, created.Status)

	byID, err := s.Store.ByID(created.ID)
	if s.NoError(err) && s.NotNil(byID) {
		s.Equal(created.ID, byID.ID)
		s.Equal("insert-read-back", byID.Name)
		s.Equal(worktime, byID.Worktime)
		s.Equal("h1", byID.Hash)
		s.Equal(map[string]interface{}{"key": "value"}, byID.Data)
	}

	byKey, err := s.Store.ByKey("insert-read-back", worktime)
	if s.NoError(err) && s.NotNil(byKey) {
		s.Equal(created.ID, byKey.ID)
	}
}

// TestInsertValidation rejects unnamed and over-long names.
func (s *Suite) TestInsertValidation() {
	_, err := s.Store.Insert(&workplan.Workplan{Worktime: s.now()})
	s.Equal(workplan.ErrNoName, err)

	long := make([]byte, workplan.MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = s.Store.Insert(&workplan.Workplan{Name: string(long), Worktime: s.now()})
	s.Equal(workplan.ErrNameTooLong, err)
}

// TestInsertConflict collides on the natural key and on an explicit
// id.
func (s *Suite) TestInsertConflict() {
	worktime := s.now()
	created := s.insert(workplan.Workplan{Name: "insert-conflict", Worktime: worktime})

	_, err := s.Store.Insert(&workplan.Workplan{Name: "insert-conflict", Worktime: worktime})
	s.Equal(workplan.ErrWorkplanExists, err)

	// The same instant in another representation is still the same key
	elsewhere := worktime.In(time.FixedZone("ET", -5*60*60)).Add(500 * time.Millisecond)
	_, err = s.Store.Insert(&workplan.Workplan{Name: "insert-conflict", Worktime: elsewhere})
	s.Equal(workplan.ErrWorkplanExists, err)

	_, err = s.Store.Insert(&workplan.Workplan{
		ID:       created.ID,
		Name:     "insert-conflict-other",
		Worktime: worktime,
	})
	s.Equal(workplan.ErrWorkplanExists, err)
}

// TestLookupMissing checks the (nil, nil) contract on lookups.
func (s *Suite) TestLookupMissing() {
	wp, err := s.Store.ByID(uuid.NewV4())
	s.NoError(err)
	s.Nil(wp)

	wp, err = s.Store.ByKey("lookup-missing", s.now())
	s.NoError(err)
	s.Nil(wp)

	wp, err = s.Store.Last("lookup-missing")
	s.NoError(err)
	s.Nil(wp)

	wp, err = s.Store.First("lookup-missing")
	s.NoError(err)
	s.Nil(wp)

	present, err := s.Store.Exists("lookup-missing")
	s.NoError(err)
	s.False(present)
}

// TestEdges exercises First, Last, Exists, and Worktimes on a small
// schedule.
func (s *Suite) TestEdges() {
	slots := s.sched("edges", workplan.StatusSuccess, workplan.StatusError, workplan.StatusAdd)

	last, err := s.Store.Last("edges")
	if s.NoError(err) && s.NotNil(last) {
		s.Equal(slots[2].Worktime, last.Worktime)
	}
	first, err := s.Store.First("edges")
	if s.NoError(err) && s.NotNil(first) {
		s.Equal(slots[0].Worktime, first.Worktime)
	}

	present, err := s.Store.Exists("edges")
	s.NoError(err)
	s.True(present)

	times, err := s.Store.Worktimes("edges")
	if s.NoError(err) {
		s.Len(times, 3)
		for _, slot := range slots {
			s.Contains(times, slot.Worktime)
		}
	}
}

// TestBulkUpsert writes fresh rows, then replaces one in place.
func (s *Suite) TestBulkUpsert() {
	worktime := s.now().Add(-2 * time.Hour)
	count, err := s.Store.BulkUpsert([]workplan.Workplan{
		{Name: "bulk-upsert", Worktime: worktime, Status: workplan.StatusError},
		{Name: "bulk-upsert", Worktime: worktime.Add(time.Hour), Status: workplan.StatusAdd},
	})
	s.NoError(err)
	s.Equal(2, count)

	before, err := s.Store.ByKey("bulk-upsert", worktime)
	s.Require().NoError(err)
	s.Require().NotNil(before)

	count, err = s.Store.BulkUpsert([]workplan.Workplan{
		{
			Name:     "bulk-upsert",
			Worktime: worktime,
			Status:   workplan.StatusSuccess,
			Info:     "replaced",
		},
	})
	s.NoError(err)
	s.Equal(1, count)

	after, err := s.Store.ByKey("bulk-upsert", worktime)
	if s.NoError(err) && s.NotNil(after) {
		// Replacement keeps the row's identity and birth time
		s.Equal(before.ID, after.ID)
		s.Equal(before.Created, after.Created)
		s.Equal(workplan.StatusSuccess, after.Status)
		s.Equal("replaced", after.Info)
	}

	// The untouched sibling row is still there
	other, err := s.Store.ByKey("bulk-upsert", worktime.Add(time.Hour))
	if s.NoError(err) && s.NotNil(other) {
		s.Equal(workplan.StatusAdd, other.Status)
	}
}

// TestSummarize aggregates counts per schedule and status.
func (s *Suite) TestSummarize() {
	s.sched("summarize-a", workplan.StatusAdd, workplan.StatusAdd, workplan.StatusError)
	s.sched("summarize-b", workplan.StatusSuccess)

	summaries, err := s.Store.Summarize()
	s.Require().NoError(err)

	got := make(map[workplan.Summary]bool)
	for _, summary := range summaries {
		got[summary] = true
	}
	s.Contains(got, workplan.Summary{Name: "summarize-a", Status: workplan.StatusAdd, Count: 2})
	s.Contains(got, workplan.Summary{Name: "summarize-a", Status: workplan.StatusError, Count: 1})
	s.Contains(got, workplan.Summary{Name: "summarize-b", Status: workplan.StatusSuccess, Count: 1})
}
