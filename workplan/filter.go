// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/satori/go.uuid"
)

// Clause is one entry of a filter document: a value and the operator
// to compare it with.  An empty operator means "equal".
type Clause struct {
	Value    interface{} `json:"value"`
	Operator string      `json:"operator"`
}

// Filter is the declarative query document accepted on the wire.
// Per-field clauses are conjunctive, both across fields and across
// entries within a field.  Compile() translates it into the Query
// value object the storage backends execute.
type Filter struct {
	// Filter maps field names to their clauses.  Fields not
	// mentioned produce no predicate.
	Filter map[string][]Clause `json:"filter"`

	// OrderBy lists ordering fields; a leading "-" selects
	// descending order.
	OrderBy []string `json:"order_by"`

	// Page is 1-based; nil means no offset.  A non-positive page
	// requests last-N-style offsets: offset = page * limit.
	Page *int `json:"page"`

	// Limit bounds the result size and is always applied.
	Limit int `json:"limit"`
}

// Compile validates the filter document and translates it into a
// storage query.  Unknown fields, unknown operators, and operators
// inapplicable to their value or field type all produce typed
// InvalidArgument-style errors before anything touches storage.
func (f Filter) Compile() (Query, error) {
	var q Query

	var where And
	for name, clauses := range f.Filter {
		field, err := ParseField(name)
		if err != nil {
			return q, err
		}
		for _, clause := range clauses {
			cond, err := compileClause(field, clause)
			if err != nil {
				return q, err
			}
			where = append(where, cond)
		}
	}
	if len(where) > 0 {
		q.Where = where
	}

	for _, name := range f.OrderBy {
		descending := strings.HasPrefix(name, "-")
		field, err := ParseField(strings.TrimPrefix(name, "-"))
		if err != nil {
			return q, err
		}
		q.OrderBy = append(q.OrderBy, Order{Field: field, Descending: descending})
	}

	q.Limit = f.Limit
	if f.Page != nil {
		page := *f.Page
		if page > 0 {
			q.Offset = (page - 1) * f.Limit
		} else {
			q.Offset = page * f.Limit
		}
	}

	return q, nil
}

func compileClause(field Field, clause Clause) (Cond, error) {
	op, err := ParseOp(clause.Operator)
	if err != nil {
		badOp := err.(ErrBadOperator)
		badOp.Field = field.String()
		return Cond{}, badOp
	}

	value := clause.Value
	switch op {
	case OpEqual, OpNotEqual:
		if value == nil {
			if !nullable(field) {
				return Cond{}, ErrBadOperator{
					Field:    field.String(),
					Operator: op.String(),
					Reason:   "field is not nullable",
				}
			}
			return Cond{Field: field, Op: op, Value: nil}, nil
		}
		value, err = normalizeValue(field, op, value)

	case OpLess, OpLessOrEqual, OpMore, OpMoreOrEqual:
		if !ordered(field) {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "field has no ordering",
			}
		}
		if value == nil {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "cannot compare against null",
			}
		}
		value, err = normalizeValue(field, op, value)

	case OpIn, OpNotIn:
		list, ok := asList(value)
		if !ok {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "value must be a list",
			}
		}
		normalized := make([]interface{}, len(list))
		for i, item := range list {
			normalized[i], err = normalizeValue(field, op, item)
			if err != nil {
				return Cond{}, err
			}
		}
		value = normalized

	case OpLike, OpNotLike, OpILike, OpNotILike:
		if !textual(field) {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "pattern match needs a text field",
			}
		}
		if _, ok := value.(string); !ok {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "pattern must be a string",
			}
		}

	case OpContains, OpNotContains:
		if !textual(field) && field != FieldData {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "substring match needs a text field",
			}
		}
		if _, ok := value.(string); !ok {
			return Cond{}, ErrBadOperator{
				Field:    field.String(),
				Operator: op.String(),
				Reason:   "substring must be a string",
			}
		}
	}
	if err != nil {
		return Cond{}, err
	}

	return Cond{Field: field, Op: op, Value: value}, nil
}

// nullable reports whether a field may be null in storage.
func nullable(field Field) bool {
	switch field {
	case FieldInfo, FieldDuration, FieldExpires, FieldStarted, FieldFinished:
		return true
	}
	return false
}

// ordered reports whether a field supports ordered comparison.
func ordered(field Field) bool {
	switch field {
	case FieldID, FieldData:
		return false
	}
	return true
}

// textual reports whether a field holds text for pattern matching.
func textual(field Field) bool {
	switch field {
	case FieldName, FieldHash, FieldStatus, FieldInfo:
		return true
	}
	return false
}

func asList(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []string:
		list := make([]interface{}, len(v))
		for i, s := range v {
			list[i] = s
		}
		return list, true
	}
	return nil, false
}

// normalizeValue converts a decoded wire value into the concrete type
// queries carry for the field: time fields get time.Time, status gets
// Status, integer fields get int, the id field gets a UUID.
func normalizeValue(field Field, op Op, value interface{}) (interface{}, error) {
	bad := func(reason string) error {
		return ErrBadOperator{
			Field:    field.String(),
			Operator: op.String(),
			Reason:   reason,
		}
	}

	switch field {
	case FieldWorktime, FieldExpires, FieldStarted, FieldFinished,
		FieldCreated, FieldUpdated:
		switch v := value.(type) {
		case time.Time:
			return UTC(v), nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, bad(fmt.Sprintf("bad timestamp %q (want RFC 3339 with zone)", v))
			}
			return UTC(t), nil
		}
		return nil, bad("value is not a timestamp")

	case FieldStatus:
		switch v := value.(type) {
		case Status:
			return v, nil
		case string:
			return ParseStatus(v)
		}
		return nil, bad("value is not a status")

	case FieldRetries, FieldDuration:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint64:
			return int(v), nil
		case float64:
			return int(v), nil
		}
		return nil, bad("value is not an integer")

	case FieldID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.FromString(v)
			if err != nil {
				return nil, bad(fmt.Sprintf("bad id %q", v))
			}
			return id, nil
		}
		return nil, bad("value is not an id")

	case FieldName, FieldHash, FieldInfo:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, bad("value is not a string")
	}

	// FieldData: opaque; backends compare its serialized form.
	return value, nil
}
