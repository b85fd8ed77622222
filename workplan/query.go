// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"fmt"
	"time"
)

// Field names a column of the workplan table for use in queries and
// patches.
type Field int

// The workplan fields, in storage order.
const (
	FieldID Field = iota
	FieldName
	FieldWorktime
	FieldStatus
	FieldHash
	FieldRetries
	FieldInfo
	FieldData
	FieldDuration
	FieldExpires
	FieldStarted
	FieldFinished
	FieldCreated
	FieldUpdated
)

// Fields lists every workplan field.
var Fields = []Field{
	FieldID, FieldName, FieldWorktime, FieldStatus, FieldHash,
	FieldRetries, FieldInfo, FieldData, FieldDuration, FieldExpires,
	FieldStarted, FieldFinished, FieldCreated, FieldUpdated,
}

// String returns the storage column name of a field; it doubles as
// the field's name in filter documents.
func (f Field) String() string {
	switch f {
	case FieldID:
		return "id"
	case FieldName:
		return "name"
	case FieldWorktime:
		return "worktime_utc"
	case FieldStatus:
		return "status"
	case FieldHash:
		return "hash"
	case FieldRetries:
		return "retries"
	case FieldInfo:
		return "info"
	case FieldData:
		return "data"
	case FieldDuration:
		return "duration"
	case FieldExpires:
		return "expires_utc"
	case FieldStarted:
		return "started_utc"
	case FieldFinished:
		return "finished_utc"
	case FieldCreated:
		return "created_utc"
	case FieldUpdated:
		return "updated_utc"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// ParseField converts a filter-document field name into a Field.
func ParseField(name string) (Field, error) {
	for _, f := range Fields {
		if f.String() == name {
			return f, nil
		}
	}
	return FieldID, ErrBadField{Field: name}
}

// Op is a comparison operator in a query condition.  The set is
// closed; backends switch exhaustively over it.
type Op int

const (
	// OpEqual is scalar equality.  A nil value means "is null".
	OpEqual Op = iota
	// OpNotEqual is scalar inequality.  A nil value means
	// "is not null".
	OpNotEqual
	// OpLess, OpLessOrEqual, OpMore and OpMoreOrEqual are ordered
	// comparisons.
	OpLess
	OpLessOrEqual
	OpMore
	OpMoreOrEqual
	// OpIn and OpNotIn test membership in a provided list.
	OpIn
	OpNotIn
	// OpLike and OpNotLike are case-sensitive pattern matches;
	// OpILike and OpNotILike are the case-insensitive variants.
	OpLike
	OpNotLike
	OpILike
	OpNotILike
	// OpContains and OpNotContains are substring tests.
	OpContains
	OpNotContains
)

var opNames = map[Op]string{
	OpEqual:       "equal",
	OpNotEqual:    "not_equal",
	OpLess:        "less",
	OpLessOrEqual: "less_or_equal",
	OpMore:        "more",
	OpMoreOrEqual: "more_or_equal",
	OpIn:          "in_",
	OpNotIn:       "not_in",
	OpLike:        "like",
	OpNotLike:     "not_like",
	OpILike:       "ilike",
	OpNotILike:    "not_ilike",
	OpContains:    "contains",
	OpNotContains: "not_contains",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// ParseOp converts a filter-document operator name into an Op.  The
// empty string defaults to OpEqual.
func ParseOp(name string) (Op, error) {
	if name == "" {
		return OpEqual, nil
	}
	for op, opName := range opNames {
		if opName == name {
			return op, nil
		}
	}
	return OpEqual, ErrBadOperator{Operator: name}
}

// Predicate is a node in a query's condition tree.  Backends evaluate
// the tree; the engine and the filter compiler only build it.
type Predicate interface {
	predicate()
}

// Cond is a leaf predicate comparing one field against a value.
type Cond struct {
	Field Field
	Op    Op
	Value interface{}
}

// And is satisfied when all of its children are.  An empty And is
// always satisfied.
type And []Predicate

// Or is satisfied when any of its children is.  An empty Or is never
// satisfied.
type Or []Predicate

func (Cond) predicate() {}
func (And) predicate()  {}
func (Or) predicate()   {}

// Order is one ordering term of a query.
type Order struct {
	Field      Field
	Descending bool
}

// Query is the value object storage backends execute: a predicate
// tree, ordering, and pagination.  A nil Where selects everything.
// Update and Delete honor only the predicate tree.
type Query struct {
	Where   Predicate
	OrderBy []Order
	Limit   int
	Offset  int
}

// Shorthand predicate constructors used throughout the engine.

// ByName restricts a query to one schedule.
func ByName(name string) Cond {
	return Cond{Field: FieldName, Op: OpEqual, Value: name}
}

// ByID restricts a query to one workplan id.
func ByID(id interface{}) Cond {
	return Cond{Field: FieldID, Op: OpEqual, Value: id}
}

// StatusIn restricts a query to a set of statuses.
func StatusIn(statuses ...Status) Cond {
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = s
	}
	return Cond{Field: FieldStatus, Op: OpIn, Value: values}
}

// StatusNotIn excludes a set of statuses.
func StatusNotIn(statuses ...Status) Cond {
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = s
	}
	return Cond{Field: FieldStatus, Op: OpNotIn, Value: values}
}

// WorktimeIn restricts a query to a set of worktimes.
func WorktimeIn(worktimes []time.Time) Cond {
	values := make([]interface{}, len(worktimes))
	for i, t := range worktimes {
		values[i] = UTC(t)
	}
	return Cond{Field: FieldWorktime, Op: OpIn, Value: values}
}

// NotExpired is satisfied by slots with no expiry or an expiry after
// now.
func NotExpired(now time.Time) Or {
	return Or{
		Cond{Field: FieldExpires, Op: OpEqual, Value: nil},
		Cond{Field: FieldExpires, Op: OpMore, Value: UTC(now)},
	}
}

// IsExpired is satisfied by slots whose expiry has passed.  Slots
// with no expiry never match.
func IsExpired(now time.Time) Cond {
	return Cond{Field: FieldExpires, Op: OpLessOrEqual, Value: UTC(now)}
}

// ForExecute selects the runnable set of a schedule: status add and
// not expired.
func ForExecute(name string, now time.Time) And {
	return And{
		ByName(name),
		Cond{Field: FieldStatus, Op: OpEqual, Value: StatusAdd},
		NotExpired(now),
	}
}
