// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"errors"
	"fmt"
)

// ErrWorkplanExists is returned from Store.Insert() when another
// workplan already holds the same id or the same (name, worktime)
// natural key.  Callers that race to create the same slot treat this
// as "already exists" and read the winner back.
var ErrWorkplanExists = errors.New("workplan already exists")

// ErrStopIteration can be returned from the callback of a streaming
// operation such as child-workplan generation to stop early.  The
// enclosing operation commits what was produced so far and returns a
// nil error.
var ErrStopIteration = errors.New("stop iteration")

// ErrNoName is returned from operations that require a schedule name
// but were given an empty one.
var ErrNoName = errors.New("workplan 'name' must not be empty")

// ErrNameTooLong is returned when a schedule name exceeds
// MaxNameLength.
var ErrNameTooLong = errors.New("workplan 'name' too long")

// ErrNoIdentity is returned from Update validation when neither an id
// nor a (name, worktime) natural key was provided.
var ErrNoIdentity = errors.New("update needs an id or a (name, worktime) key")

// ErrNoStartTime is returned from generate-request validation when no
// start time anchors the schedule's interval grid.
var ErrNoStartTime = errors.New("generate needs a start time")

// ErrBadOffsetPeriods is returned when a replay offset specification
// is not a positive count or a list of strictly negative offsets.
var ErrBadOffsetPeriods = errors.New("offset periods must be strictly negative")

// ErrNoSuchStatus is returned when a string does not name a workplan
// status, for instance an invalid child-generation status trigger.
type ErrNoSuchStatus struct {
	Status string
}

func (err ErrNoSuchStatus) Error() string {
	return fmt.Sprintf("no such status %q", err.Status)
}

// ErrBadField is returned by the filter compiler when a filter or
// ordering document names an unknown workplan field.
type ErrBadField struct {
	Field string
}

func (err ErrBadField) Error() string {
	return fmt.Sprintf("no such workplan field %q", err.Field)
}

// ErrBadOperator is returned by the filter compiler when a filter
// entry names an unknown operator, or applies an operator to a value
// it cannot work on (for instance a pattern match against an integer
// field).
type ErrBadOperator struct {
	Field    string
	Operator string
	Reason   string
}

func (err ErrBadOperator) Error() string {
	if err.Reason == "" {
		return fmt.Sprintf("no such filter operator %q", err.Operator)
	}
	return fmt.Sprintf("operator %q not applicable to field %q: %s",
		err.Operator, err.Field, err.Reason)
}
