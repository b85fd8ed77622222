// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

// Translation of the query value object into SQL.  The predicate tree
// becomes a WHERE fragment with positional parameters; ordering
// becomes an ORDER BY clause.  Null handling matches the port
// contract: a null column satisfies nothing except an explicit
// equal-nil (IS NULL) or not-equal-nil (IS NOT NULL) condition, which
// is also what PostgreSQL's three-valued logic gives us for free.

import (
	"fmt"
	"strings"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

const workplanTable = "workplans"

// workplanColumns lists every column in storage order, matching
// scanWorkplan().
func workplanColumns() []string {
	columns := make([]string, len(workplan.Fields))
	for i, f := range workplan.Fields {
		columns[i] = f.String()
	}
	return columns
}

// predicateSQL converts a predicate tree into one SQL condition
// string, appending its dynamic values to params.
func predicateSQL(p workplan.Predicate, params *queryParams) (string, error) {
	switch pred := p.(type) {
	case nil:
		return "TRUE", nil
	case workplan.Cond:
		return condSQL(pred, params)
	case workplan.And:
		if len(pred) == 0 {
			return "TRUE", nil
		}
		return joinSQL(pred, " AND ", params)
	case workplan.Or:
		if len(pred) == 0 {
			return "FALSE", nil
		}
		return joinSQL(pred, " OR ", params)
	default:
		return "", fmt.Errorf("unexpected predicate type %T", p)
	}
}

func joinSQL(children []workplan.Predicate, sep string, params *queryParams) (string, error) {
	bits := make([]string, len(children))
	for i, child := range children {
		bit, err := predicateSQL(child, params)
		if err != nil {
			return "", err
		}
		bits[i] = bit
	}
	return "(" + strings.Join(bits, sep) + ")", nil
}

func condSQL(c workplan.Cond, params *queryParams) (string, error) {
	column := c.Field.String()
	switch c.Op {
	case workplan.OpEqual:
		value := condValue(c.Field, c.Value)
		if value == nil {
			return column + " IS NULL", nil
		}
		return column + "=" + params.Param(value), nil
	case workplan.OpNotEqual:
		value := condValue(c.Field, c.Value)
		if value == nil {
			return column + " IS NOT NULL", nil
		}
		return column + "<>" + params.Param(value), nil
	case workplan.OpLess, workplan.OpLessOrEqual, workplan.OpMore, workplan.OpMoreOrEqual:
		value := condValue(c.Field, c.Value)
		if value == nil {
			// Nothing orders against null
			return "FALSE", nil
		}
		return column + orderedOpSQL(c.Op) + params.Param(value), nil
	case workplan.OpIn, workplan.OpNotIn:
		return inSQL(c, params)
	case workplan.OpLike:
		return column + " LIKE " + params.Param(condValue(c.Field, c.Value)), nil
	case workplan.OpNotLike:
		return column + " NOT LIKE " + params.Param(condValue(c.Field, c.Value)), nil
	case workplan.OpILike:
		return column + " ILIKE " + params.Param(condValue(c.Field, c.Value)), nil
	case workplan.OpNotILike:
		return column + " NOT ILIKE " + params.Param(condValue(c.Field, c.Value)), nil
	case workplan.OpContains:
		return "strpos(" + column + ", " + params.Param(condValue(c.Field, c.Value)) + ") <> 0", nil
	case workplan.OpNotContains:
		return "strpos(" + column + ", " + params.Param(condValue(c.Field, c.Value)) + ") = 0", nil
	default:
		return "", workplan.ErrBadOperator{
			Field:    c.Field.String(),
			Operator: c.Op.String(),
			Reason:   "no SQL translation",
		}
	}
}

func orderedOpSQL(op workplan.Op) string {
	switch op {
	case workplan.OpLess:
		return "<"
	case workplan.OpLessOrEqual:
		return "<="
	case workplan.OpMore:
		return ">"
	default:
		return ">="
	}
}

func inSQL(c workplan.Cond, params *queryParams) (string, error) {
	list, ok := c.Value.([]interface{})
	if !ok {
		return "", workplan.ErrBadOperator{
			Field:    c.Field.String(),
			Operator: c.Op.String(),
			Reason:   "value is not a list",
		}
	}
	if len(list) == 0 {
		if c.Op == workplan.OpNotIn {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	bits := make([]string, len(list))
	for i, item := range list {
		bits[i] = params.Param(condValue(c.Field, item))
	}
	column := c.Field.String()
	if c.Op == workplan.OpNotIn {
		return column + " NOT IN (" + strings.Join(bits, ", ") + ")", nil
	}
	return column + " IN (" + strings.Join(bits, ", ") + ")", nil
}

// condValue converts a condition value into its stored form: times
// canonicalized, statuses as their text names, ids as strings, and
// the zero values of nullable columns as SQL null.
func condValue(f workplan.Field, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		t := workplan.UTC(v)
		if t.IsZero() {
			return nil
		}
		return t
	case workplan.Status:
		return v.String()
	case uuid.UUID:
		return v.String()
	case string:
		if v == "" && (f == workplan.FieldInfo || f == workplan.FieldData) {
			return nil
		}
		return v
	case int:
		if v == 0 && f == workplan.FieldDuration {
			return nil
		}
		return v
	default:
		return v
	}
}

// orderBySQL renders the ordering terms.  Explicit null placement
// keeps the two backends agreeing: nulls sort first ascending, last
// descending.
func orderBySQL(orders []workplan.Order) string {
	if len(orders) == 0 {
		return ""
	}
	terms := make([]string, len(orders))
	for i, o := range orders {
		if o.Descending {
			terms[i] = o.Field.String() + " DESC NULLS LAST"
		} else {
			terms[i] = o.Field.String() + " ASC NULLS FIRST"
		}
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}
