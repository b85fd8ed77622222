// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"testing"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/stretchr/testify/assert"
)

type predicateCase struct {
	Predicate workplan.Predicate
	SQL       string
	Params    []interface{}
}

var somePredicates = []predicateCase{
	{nil, "TRUE", nil},
	{workplan.And{}, "TRUE", nil},
	{workplan.Or{}, "FALSE", nil},
	{
		workplan.ByName("daily-report"),
		"name=$1",
		[]interface{}{"daily-report"},
	},
	{
		workplan.Cond{Field: workplan.FieldExpires, Op: workplan.OpEqual, Value: nil},
		"expires_utc IS NULL",
		nil,
	},
	{
		workplan.Cond{Field: workplan.FieldInfo, Op: workplan.OpNotEqual, Value: nil},
		"info IS NOT NULL",
		nil,
	},
	{
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpEqual, Value: workplan.StatusFatalError},
		"status=$1",
		[]interface{}{"fatal_error"},
	},
	{
		workplan.Cond{Field: workplan.FieldRetries, Op: workplan.OpLess, Value: 5},
		"retries<$1",
		[]interface{}{5},
	},
	{
		workplan.StatusIn(workplan.StatusQueue, workplan.StatusRun),
		"status IN ($1, $2)",
		[]interface{}{"queue", "run"},
	},
	{
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpIn, Value: []interface{}{}},
		"FALSE",
		nil,
	},
	{
		workplan.Cond{Field: workplan.FieldStatus, Op: workplan.OpNotIn, Value: []interface{}{}},
		"TRUE",
		nil,
	},
	{
		workplan.Cond{Field: workplan.FieldName, Op: workplan.OpILike, Value: "daily-%"},
		"name ILIKE $1",
		[]interface{}{"daily-%"},
	},
	{
		workplan.Cond{Field: workplan.FieldInfo, Op: workplan.OpContains, Value: "timeout"},
		"strpos(info, $1) <> 0",
		[]interface{}{"timeout"},
	},
	{
		workplan.And{
			workplan.ByName("daily-report"),
			workplan.Or{
				workplan.Cond{Field: workplan.FieldExpires, Op: workplan.OpEqual, Value: nil},
				workplan.Cond{Field: workplan.FieldRetries, Op: workplan.OpMoreOrEqual, Value: 1},
			},
		},
		"(name=$1 AND (expires_utc IS NULL OR retries>=$2))",
		[]interface{}{"daily-report", 1},
	},
}

func TestPredicateSQL(t *testing.T) {
	for _, c := range somePredicates {
		params := queryParams{}
		actual, err := predicateSQL(c.Predicate, &params)
		if assert.NoError(t, err, c.SQL) {
			assert.Equal(t, c.SQL, actual)
			if c.Params == nil {
				assert.Empty(t, params, c.SQL)
			} else {
				assert.Equal(t, queryParams(c.Params), params, c.SQL)
			}
		}
	}
}

func TestPredicateSQLTimes(t *testing.T) {
	instant := time.Date(2022, time.November, 11, 12, 0, 0, 500000000, time.UTC)
	params := queryParams{}
	actual, err := predicateSQL(workplan.Cond{
		Field: workplan.FieldWorktime,
		Op:    workplan.OpLessOrEqual,
		Value: instant,
	}, &params)
	if assert.NoError(t, err) {
		assert.Equal(t, "worktime_utc<=$1", actual)
		assert.Equal(t, queryParams{workplan.UTC(instant)}, params)
	}

	// The zero time is the null representation, and nothing orders
	// against null
	params = queryParams{}
	actual, err = predicateSQL(workplan.Cond{
		Field: workplan.FieldExpires,
		Op:    workplan.OpLess,
		Value: time.Time{},
	}, &params)
	if assert.NoError(t, err) {
		assert.Equal(t, "FALSE", actual)
		assert.Empty(t, params)
	}
}

func TestOrderBySQL(t *testing.T) {
	assert.Equal(t, "", orderBySQL(nil))
	assert.Equal(t,
		" ORDER BY worktime_utc DESC NULLS LAST",
		orderBySQL([]workplan.Order{{Field: workplan.FieldWorktime, Descending: true}}))
	assert.Equal(t,
		" ORDER BY finished_utc ASC NULLS FIRST, worktime_utc ASC NULLS FIRST",
		orderBySQL([]workplan.Order{
			{Field: workplan.FieldFinished},
			{Field: workplan.FieldWorktime},
		}))
}
