// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
	"github.com/ugorji/go/codec"
)

// match evaluates a predicate tree against one row.  A nil predicate
// matches everything.  Null fields follow SQL semantics: they satisfy
// no condition except an explicit null (in)equality test.
func match(pred workplan.Predicate, wp *workplan.Workplan) (bool, error) {
	switch p := pred.(type) {
	case nil:
		return true, nil
	case workplan.And:
		for _, child := range p {
			ok, err := match(child, wp)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case workplan.Or:
		for _, child := range p {
			ok, err := match(child, wp)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case workplan.Cond:
		return matchCond(p, wp)
	default:
		return false, fmt.Errorf("unknown predicate %T", pred)
	}
}

func matchCond(cond workplan.Cond, wp *workplan.Workplan) (bool, error) {
	value := fieldValue(wp, cond.Field)

	switch cond.Op {
	case workplan.OpEqual:
		if cond.Value == nil {
			return value == nil, nil
		}
		if value == nil {
			return false, nil
		}
		c, err := compareValues(value, cond.Value)
		return err == nil && c == 0, err

	case workplan.OpNotEqual:
		if cond.Value == nil {
			return value != nil, nil
		}
		if value == nil {
			return false, nil
		}
		c, err := compareValues(value, cond.Value)
		return err == nil && c != 0, err

	case workplan.OpLess, workplan.OpLessOrEqual, workplan.OpMore, workplan.OpMoreOrEqual:
		if value == nil || cond.Value == nil {
			return false, nil
		}
		c, err := compareValues(value, cond.Value)
		if err != nil {
			return false, err
		}
		switch cond.Op {
		case workplan.OpLess:
			return c < 0, nil
		case workplan.OpLessOrEqual:
			return c <= 0, nil
		case workplan.OpMore:
			return c > 0, nil
		default:
			return c >= 0, nil
		}

	case workplan.OpIn, workplan.OpNotIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("in-list condition needs a list, got %T", cond.Value)
		}
		if value == nil {
			return false, nil
		}
		found := false
		for _, item := range list {
			c, err := compareValues(value, item)
			if err != nil {
				return false, err
			}
			if c == 0 {
				found = true
				break
			}
		}
		if cond.Op == workplan.OpIn {
			return found, nil
		}
		return !found, nil

	case workplan.OpLike, workplan.OpNotLike, workplan.OpILike, workplan.OpNotILike:
		text, pattern, err := textOperands(value, cond.Value)
		if err != nil || value == nil {
			return false, err
		}
		insensitive := cond.Op == workplan.OpILike || cond.Op == workplan.OpNotILike
		matched, err := likeMatch(text, pattern, insensitive)
		if err != nil {
			return false, err
		}
		if cond.Op == workplan.OpLike || cond.Op == workplan.OpILike {
			return matched, nil
		}
		return !matched, nil

	case workplan.OpContains, workplan.OpNotContains:
		text, needle, err := textOperands(value, cond.Value)
		if err != nil || value == nil {
			return false, err
		}
		contained := strings.Contains(text, needle)
		if cond.Op == workplan.OpContains {
			return contained, nil
		}
		return !contained, nil
	}

	return false, fmt.Errorf("unknown operator %v", cond.Op)
}

// fieldValue extracts a field from a row, mapping unset nullable
// fields to nil.
func fieldValue(wp *workplan.Workplan, field workplan.Field) interface{} {
	switch field {
	case workplan.FieldID:
		return wp.ID
	case workplan.FieldName:
		return wp.Name
	case workplan.FieldWorktime:
		return wp.Worktime
	case workplan.FieldStatus:
		return wp.Status
	case workplan.FieldHash:
		return wp.Hash
	case workplan.FieldRetries:
		return wp.Retries
	case workplan.FieldInfo:
		if wp.Info == "" {
			return nil
		}
		return wp.Info
	case workplan.FieldData:
		return dataText(wp.Data)
	case workplan.FieldDuration:
		if wp.Duration == 0 {
			return nil
		}
		return wp.Duration
	case workplan.FieldExpires:
		return nullableTime(wp.Expires)
	case workplan.FieldStarted:
		return nullableTime(wp.Started)
	case workplan.FieldFinished:
		return nullableTime(wp.Finished)
	case workplan.FieldCreated:
		return wp.Created
	case workplan.FieldUpdated:
		return wp.Updated
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// dataText is the serialized form of the data payload, the shape
// substring conditions run against.
func dataText(data map[string]interface{}) string {
	if len(data) == 0 {
		return "{}"
	}
	var out []byte
	encoder := codec.NewEncoderBytes(&out, &codec.JsonHandle{})
	if err := encoder.Encode(data); err != nil {
		return ""
	}
	return string(out)
}

// compareValues orders two values of compatible types, returning
// <0, 0 or >0.
func compareValues(a, b interface{}) (int, error) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", b)
		}
		return strings.Compare(av, bv), nil

	case int:
		bv, err := asInt(b)
		if err != nil {
			return 0, err
		}
		return av - bv, nil

	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare time with %T", b)
		}
		if av.Before(bv) {
			return -1, nil
		}
		if av.After(bv) {
			return 1, nil
		}
		return 0, nil

	case workplan.Status:
		switch bv := b.(type) {
		case workplan.Status:
			return int(av) - int(bv), nil
		case string:
			parsed, err := workplan.ParseStatus(bv)
			if err != nil {
				return 0, err
			}
			return int(av) - int(parsed), nil
		}
		return 0, fmt.Errorf("cannot compare status with %T", b)

	case uuid.UUID:
		switch bv := b.(type) {
		case uuid.UUID:
			return strings.Compare(av.String(), bv.String()), nil
		case string:
			return strings.Compare(av.String(), bv), nil
		}
		return 0, fmt.Errorf("cannot compare id with %T", b)
	}
	return 0, fmt.Errorf("cannot compare %T", a)
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("cannot compare integer with %T", v)
}

func textOperands(value, condValue interface{}) (string, string, error) {
	pattern, ok := condValue.(string)
	if !ok {
		return "", "", fmt.Errorf("text condition needs a string, got %T", condValue)
	}
	if value == nil {
		return "", pattern, nil
	}
	switch v := value.(type) {
	case string:
		return v, pattern, nil
	case workplan.Status:
		return v.String(), pattern, nil
	}
	return "", "", fmt.Errorf("text condition on non-text value %T", value)
}

// likeMatch implements SQL LIKE: % matches any run of characters and
// _ matches a single character; everything else is literal.
func likeMatch(text, pattern string, insensitive bool) (bool, error) {
	var expr strings.Builder
	if insensitive {
		expr.WriteString("(?is)")
	} else {
		expr.WriteString("(?s)")
	}
	expr.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			expr.WriteString(".*")
		case '_':
			expr.WriteString(".")
		default:
			expr.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	expr.WriteString("$")
	return regexp.MatchString(expr.String(), text)
}

// orderRows sorts rows by the query's ordering terms.  Null fields
// sort first ascending.
func orderRows(rows []workplan.Workplan, orderBy []workplan.Order) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range orderBy {
			a := fieldValue(&rows[i], term.Field)
			b := fieldValue(&rows[j], term.Field)
			c := compareNullable(a, b)
			if c == 0 {
				continue
			}
			if term.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareNullable(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}
