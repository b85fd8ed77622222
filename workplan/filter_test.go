// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCompileEmpty(t *testing.T) {
	q, err := Filter{}.Compile()
	require.NoError(t, err)
	assert.Nil(t, q.Where)
	assert.Empty(t, q.OrderBy)
	assert.Equal(t, 0, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

func TestFilterCompileConditions(t *testing.T) {
	f := Filter{
		Filter: map[string][]Clause{
			"name": {
				{Value: "daily-report"},
			},
			"status": {
				{Value: "error", Operator: "equal"},
			},
			"retries": {
				{Value: float64(0), Operator: "more_or_equal"},
				{Value: float64(3), Operator: "less"},
			},
		},
	}
	q, err := f.Compile()
	require.NoError(t, err)

	where, ok := q.Where.(And)
	require.True(t, ok)
	require.Len(t, where, 4)

	conds := make(map[Cond]bool)
	for _, pred := range where {
		cond, ok := pred.(Cond)
		require.True(t, ok)
		conds[cond] = true
	}
	assert.Contains(t, conds, Cond{Field: FieldName, Op: OpEqual, Value: "daily-report"})
	assert.Contains(t, conds, Cond{Field: FieldStatus, Op: OpEqual, Value: StatusError})
	assert.Contains(t, conds, Cond{Field: FieldRetries, Op: OpMoreOrEqual, Value: 0})
	assert.Contains(t, conds, Cond{Field: FieldRetries, Op: OpLess, Value: 3})
}

func TestFilterCompileTimes(t *testing.T) {
	f := Filter{
		Filter: map[string][]Clause{
			"worktime_utc": {
				{Value: "2022-11-11T06:00:00+01:00", Operator: "more"},
			},
		},
	}
	q, err := f.Compile()
	require.NoError(t, err)

	where := q.Where.(And)
	require.Len(t, where, 1)
	cond := where[0].(Cond)
	assert.Equal(t, FieldWorktime, cond.Field)
	assert.Equal(t, OpMore, cond.Op)
	// Normalized to UTC
	assert.Equal(t, time.Date(2022, time.November, 11, 5, 0, 0, 0, time.UTC), cond.Value)
}

func TestFilterCompileNull(t *testing.T) {
	f := Filter{
		Filter: map[string][]Clause{
			"expires_utc": {
				{Value: nil, Operator: "equal"},
			},
		},
	}
	q, err := f.Compile()
	require.NoError(t, err)
	cond := q.Where.(And)[0].(Cond)
	assert.Equal(t, Cond{Field: FieldExpires, Op: OpEqual, Value: nil}, cond)

	// Non-nullable fields reject null comparison
	f = Filter{
		Filter: map[string][]Clause{
			"name": {
				{Value: nil},
			},
		},
	}
	_, err = f.Compile()
	assert.IsType(t, ErrBadOperator{}, err)
}

func TestFilterCompileIn(t *testing.T) {
	f := Filter{
		Filter: map[string][]Clause{
			"status": {
				{Value: []interface{}{"queue", "run"}, Operator: "in_"},
			},
		},
	}
	q, err := f.Compile()
	require.NoError(t, err)
	cond := q.Where.(And)[0].(Cond)
	assert.Equal(t, OpIn, cond.Op)
	assert.Equal(t, []interface{}{StatusQueue, StatusRun}, cond.Value)

	f.Filter["status"][0].Value = "queue"
	_, err = f.Compile()
	assert.IsType(t, ErrBadOperator{}, err)
}

func TestFilterCompileBadInputs(t *testing.T) {
	cases := []Filter{
		// Unknown field
		{Filter: map[string][]Clause{"nonesuch": {{Value: 1}}}},
		// Unknown operator
		{Filter: map[string][]Clause{"name": {{Value: "x", Operator: "matches"}}}},
		// Ordered comparison on an unordered field
		{Filter: map[string][]Clause{"id": {{Value: "x", Operator: "less"}}}},
		// Pattern match on a non-text field
		{Filter: map[string][]Clause{"retries": {{Value: "1%", Operator: "like"}}}},
		// Pattern that is not a string
		{Filter: map[string][]Clause{"name": {{Value: 3, Operator: "like"}}}},
		// Unparseable timestamp
		{Filter: map[string][]Clause{"worktime_utc": {{Value: "yesterday"}}}},
		// Unparseable status
		{Filter: map[string][]Clause{"status": {{Value: "cancelled"}}}},
		// Unparseable id
		{Filter: map[string][]Clause{"id": {{Value: "not-a-uuid"}}}},
		// Unknown order field
		{OrderBy: []string{"-nonesuch"}},
	}
	for _, f := range cases {
		_, err := f.Compile()
		assert.Error(t, err, "%+v", f)
	}
}

func TestFilterCompileOrderBy(t *testing.T) {
	f := Filter{OrderBy: []string{"-worktime_utc", "name"}}
	q, err := f.Compile()
	require.NoError(t, err)
	assert.Equal(t, []Order{
		{Field: FieldWorktime, Descending: true},
		{Field: FieldName},
	}, q.OrderBy)
}

func TestFilterCompilePagination(t *testing.T) {
	page := 3
	q, err := Filter{Page: &page, Limit: 10}.Compile()
	require.NoError(t, err)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 20, q.Offset)

	page = 1
	q, err = Filter{Page: &page, Limit: 10}.Compile()
	require.NoError(t, err)
	assert.Equal(t, 0, q.Offset)

	// A non-positive page counts from the end of the result set
	page = -1
	q, err = Filter{Page: &page, Limit: 10}.Compile()
	require.NoError(t, err)
	assert.Equal(t, -10, q.Offset)

	q, err = Filter{Limit: 10}.Compile()
	require.NoError(t, err)
	assert.Equal(t, 0, q.Offset)
}
