// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package workplan defines the abstract API to the workplanner.
//
// A Workplan is one scheduled slot of one named recurring job at one
// instant.  The set of workplans sharing a name forms a schedule.  This
// package holds the value types, the Store port that storage backends
// implement, and the filter-document compiler; the actual scheduling
// algorithms live in the planner package.
//
// All timestamps are UTC with second precision.  Backends store zero
// time values as SQL NULL, and the comparison semantics of queries
// follow SQL: a null field satisfies no condition except an explicit
// null equality test.
package workplan

import (
	"time"

	"github.com/satori/go.uuid"
)

// InfoExpired is the diagnostic written to a workplan's Info field
// when the expiry sweep moves it to StatusError.
const InfoExpired = "expired"

// MaxNameLength is the longest allowed schedule name.
const MaxNameLength = 255

// Workplan is a single scheduled slot.  ID is unique, and so is the
// natural key (Name, Worktime); both identities are stable across
// status changes.
type Workplan struct {
	// ID is the opaque unique identifier of this slot.
	ID uuid.UUID

	// Name is the job name; workplans sharing a name form a schedule.
	Name string

	// Worktime is the logical target instant of this slot, in UTC.
	// It is not the time the slot actually ran.
	Worktime time.Time

	// Status is the slot's position in the lifecycle state machine.
	Status Status

	// Hash is an opaque fingerprint of the job definition at creation
	// time.  Empty means unspecified.  The fatal-error circuit breaker
	// resets when the hash changes.
	Hash string

	// Retries counts attempts consumed so far.
	Retries int

	// Info is a failure diagnostic.  Empty means unset; it is cleared
	// on replay.
	Info string

	// Data is an opaque payload echoed to workers.
	Data map[string]interface{}

	// Duration is the observed runtime in seconds, or zero if not
	// recorded.
	Duration int

	// Expires makes the slot unusable after this instant.  Zero means
	// the slot never expires.
	Expires time.Time

	// Started and Finished are execution bookkeeping; zero means
	// unset.
	Started  time.Time
	Finished time.Time

	// Created and Updated are audit timestamps maintained by the
	// store.  Updated is monotonically non-decreasing per slot.
	Created time.Time
	Updated time.Time
}

// Expired reports whether the slot is expired as of now.  A slot with
// no expiry never expires.
func (wp *Workplan) Expired(now time.Time) bool {
	return !wp.Expires.IsZero() && !wp.Expires.After(now)
}

// Runnable reports whether the slot belongs in the runnable set as of
// now: status StatusAdd and not expired.
func (wp *Workplan) Runnable(now time.Time) bool {
	return wp.Status == StatusAdd && !wp.Expired(now)
}

// UTC canonicalizes a timestamp for storage and comparison: converted
// to UTC and truncated to second precision.  Zero time stays zero.
func UTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}

// Canonicalize rewrites all timestamps of a workplan via UTC().  Stores
// call this on every row coming in so that natural-key comparisons are
// exact.
func (wp *Workplan) Canonicalize() {
	wp.Worktime = UTC(wp.Worktime)
	wp.Expires = UTC(wp.Expires)
	wp.Started = UTC(wp.Started)
	wp.Finished = UTC(wp.Finished)
	wp.Created = UTC(wp.Created)
	wp.Updated = UTC(wp.Updated)
}
