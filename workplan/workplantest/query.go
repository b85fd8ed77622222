// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplantest

import (
	"time"

	"github.com/diffeo/go-workplanner/workplan"
)

// TestSelectOperators covers the scalar comparison operators.
func (s *Suite) TestSelectOperators() {
	slots := s.sched("select-operators",
		workplan.StatusSuccess, workplan.StatusError, workplan.StatusAdd)

	// equal
	rows, err := s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpEqual, Value: workplan.StatusError},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal(slots[1].Worktime, rows[0].Worktime)
	}

	// not_equal
	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpNotEqual, Value: workplan.StatusError},
	}})
	s.NoError(err)
	s.Len(rows, 2)

	// ordered comparison on worktime
	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.Cond{Field: workplan.FieldWorktime, Op: workplan.OpMoreOrEqual, Value: slots[1].Worktime},
	}})
	s.NoError(err)
	s.Len(rows, 2)

	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.Cond{Field: workplan.FieldWorktime, Op: workplan.OpLess, Value: slots[1].Worktime},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal(slots[0].Worktime, rows[0].Worktime)
	}

	// in_ / not_in
	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.StatusIn(workplan.StatusSuccess, workplan.StatusError),
	}})
	s.NoError(err)
	s.Len(rows, 2)

	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("select-operators"),
		workplan.StatusNotIn(workplan.StatusSuccess, workplan.StatusError),
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal(workplan.StatusAdd, rows[0].Status)
	}
}

// TestSelectPatterns covers like, ilike, and contains.
func (s *Suite) TestSelectPatterns() {
	s.insert(workplan.Workplan{
		Name:     "select-patterns-one",
		Worktime: s.now(),
		Info:     "transient failure",
		Data:     map[string]interface{}{"source": "upstream"},
	})
	s.insert(workplan.Workplan{
		Name:     "select-patterns-two",
		Worktime: s.now(),
	})

	rows, err := s.Store.Select(workplan.Query{Where: workplan.Cond{
		Field: workplan.FieldName, Op: workplan.OpLike, Value: "select-patterns-%",
	}})
	s.NoError(err)
	s.Len(rows, 2)

	rows, err = s.Store.Select(workplan.Query{Where: workplan.Cond{
		Field: workplan.FieldName, Op: workplan.OpLike, Value: "SELECT-PATTERNS-%",
	}})
	s.NoError(err)
	s.Len(rows, 0)

	rows, err = s.Store.Select(workplan.Query{Where: workplan.Cond{
		Field: workplan.FieldName, Op: workplan.OpILike, Value: "SELECT-PATTERNS-%",
	}})
	s.NoError(err)
	s.Len(rows, 2)

	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.Cond{Field: workplan.FieldName, Op: workplan.OpLike, Value: "select-patterns-%"},
		workplan.Cond{Field: workplan.FieldInfo, Op: workplan.OpContains, Value: "failure"},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal("select-patterns-one", rows[0].Name)
	}

	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.Cond{Field: workplan.FieldName, Op: workplan.OpLike, Value: "select-patterns-%"},
		workplan.Cond{Field: workplan.FieldData, Op: workplan.OpContains, Value: "upstream"},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal("select-patterns-one", rows[0].Name)
	}
}

// TestNullSemantics checks that nullable zero values behave as SQL
// nulls.
func (s *Suite) TestNullSemantics() {
	s.insert(workplan.Workplan{
		Name:     "null-semantics",
		Worktime: s.now().Add(-time.Hour),
	})
	s.insert(workplan.Workplan{
		Name:     "null-semantics",
		Worktime: s.now(),
		Expires:  s.now().Add(time.Hour),
		Info:     "set",
	})

	// equal nil is "is null"
	rows, err := s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("null-semantics"),
		workplan.Cond{Field: workplan.FieldExpires, Op: workplan.OpEqual, Value: nil},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.True(rows[0].Expires.IsZero())
	}

	// not_equal nil is "is not null"
	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("null-semantics"),
		workplan.Cond{Field: workplan.FieldInfo, Op: workplan.OpNotEqual, Value: nil},
	}})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal("set", rows[0].Info)
	}

	// ordered comparisons never match a null column
	rows, err = s.Store.Select(workplan.Query{Where: workplan.And{
		workplan.ByName("null-semantics"),
		workplan.Cond{Field: workplan.FieldExpires, Op: workplan.OpLessOrEqual, Value: s.now().Add(24 * time.Hour)},
	}})
	s.NoError(err)
	s.Len(rows, 1)
}

// TestOrdering checks multi-term ordering and null placement.
func (s *Suite) TestOrdering() {
	slots := s.sched("ordering", workplan.StatusAdd, workplan.StatusAdd, workplan.StatusAdd)

	rows, err := s.Store.Select(workplan.Query{
		Where:   workplan.ByName("ordering"),
		OrderBy: []workplan.Order{{Field: workplan.FieldWorktime, Descending: true}},
	})
	if s.NoError(err) && s.Len(rows, 3) {
		s.Equal([]time.Time{
			slots[2].Worktime, slots[1].Worktime, slots[0].Worktime,
		}, worktimes(rows))
	}

	// Give the middle slot a finish time; null finish sorts first
	// ascending
	finished := s.now()
	_, err = s.Store.Update(workplan.Query{Where: workplan.And{
		workplan.ByName("ordering"),
		workplan.Cond{Field: workplan.FieldWorktime, Op: workplan.OpEqual, Value: slots[1].Worktime},
	}}, workplan.Patch{Finished: &finished})
	s.Require().NoError(err)

	rows, err = s.Store.Select(workplan.Query{
		Where: workplan.ByName("ordering"),
		OrderBy: []workplan.Order{
			{Field: workplan.FieldFinished},
			{Field: workplan.FieldWorktime},
		},
	})
	if s.NoError(err) && s.Len(rows, 3) {
		s.Equal([]time.Time{
			slots[0].Worktime, slots[2].Worktime, slots[1].Worktime,
		}, worktimes(rows))
	}
}

// TestPagination checks limit and offset, including the
// count-from-the-end form.
func (s *Suite) TestPagination() {
	slots := s.sched("pagination",
		workplan.StatusAdd, workplan.StatusAdd, workplan.StatusAdd,
		workplan.StatusAdd, workplan.StatusAdd)
	base := workplan.Query{
		Where:   workplan.ByName("pagination"),
		OrderBy: []workplan.Order{{Field: workplan.FieldWorktime}},
	}

	q := base
	q.Limit = 2
	rows, err := s.Store.Select(q)
	if s.NoError(err) && s.Len(rows, 2) {
		s.Equal([]time.Time{slots[0].Worktime, slots[1].Worktime}, worktimes(rows))
	}

	q = base
	q.Limit = 2
	q.Offset = 2
	rows, err = s.Store.Select(q)
	if s.NoError(err) && s.Len(rows, 2) {
		s.Equal([]time.Time{slots[2].Worktime, slots[3].Worktime}, worktimes(rows))
	}

	q = base
	q.Offset = 10
	rows, err = s.Store.Select(q)
	s.NoError(err)
	s.Len(rows, 0)

	// A negative offset counts back from the end
	q = base
	q.Offset = -2
	rows, err = s.Store.Select(q)
	if s.NoError(err) && s.Len(rows, 2) {
		s.Equal([]time.Time{slots[3].Worktime, slots[4].Worktime}, worktimes(rows))
	}

	q = base
	q.Offset = -10
	rows, err = s.Store.Select(q)
	s.NoError(err)
	s.Len(rows, 5)
}

// TestCount checks Count against the same predicates Select honors.
func (s *Suite) TestCount() {
	s.sched("count", workplan.StatusAdd, workplan.StatusError, workplan.StatusError)

	count, err := s.Store.Count(workplan.Query{Where: workplan.ByName("count")})
	s.NoError(err)
	s.Equal(3, count)

	count, err = s.Store.Count(workplan.Query{Where: workplan.And{
		workplan.ByName("count"),
		workplan.StatusIn(workplan.StatusError),
	}})
	s.NoError(err)
	s.Equal(2, count)

	count, err = s.Store.Count(workplan.Query{Where: workplan.ByName("count-nothing")})
	s.NoError(err)
	s.Equal(0, count)
}
