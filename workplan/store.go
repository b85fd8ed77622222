// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"time"

	"github.com/satori/go.uuid"
)

// Patch is a partial update applied by Store.Update().  Pointer
// fields are applied when non-nil; the Clear flags set nullable
// fields back to null; AddRetries is added to the current retry
// count.  Stores always advance the Updated timestamp on the rows a
// patch touches.
type Patch struct {
	Status   *Status
	Hash     *string
	Retries  *int
	Info     *string
	Duration *int
	Data     map[string]interface{}
	Expires  *time.Time
	Started  *time.Time
	Finished *time.Time

	AddRetries int

	ClearInfo     bool
	ClearDuration bool
	ClearExpires  bool
}

// IsZero reports whether the patch changes nothing beyond the Updated
// timestamp.
func (p Patch) IsZero() bool {
	return p.Status == nil && p.Hash == nil && p.Retries == nil &&
		p.Info == nil && p.Duration == nil && p.Data == nil &&
		p.Expires == nil && p.Started == nil && p.Finished == nil &&
		p.AddRetries == 0 &&
		!p.ClearInfo && !p.ClearDuration && !p.ClearExpires
}

// Summary is one row of a Store.Summarize() aggregation: the number
// of workplans of one schedule in one status.
type Summary struct {
	Name   string
	Status Status
	Count  int
}

// Store is the capability set the lifecycle engine needs from
// persistence.  Lookups that find nothing return (nil, nil); typed
// errors are reserved for conflicts, invalid queries, and storage
// faults.
//
// Every method runs under the caller's transactional scope, if any.
// Transaction opens a nested scope: implementations either use real
// savepoints or snapshot state, but in both cases all effects of the
// callback commit together or not at all.
type Store interface {
	// ByID looks a workplan up by its unique id.
	ByID(id uuid.UUID) (*Workplan, error)

	// ByKey looks a workplan up by its (name, worktime) natural key.
	ByKey(name string, worktime time.Time) (*Workplan, error)

	// Last returns the workplan of a schedule with the greatest
	// worktime.
	Last(name string) (*Workplan, error)

	// First returns the workplan of a schedule with the smallest
	// worktime.
	First(name string) (*Workplan, error)

	// Exists reports whether the schedule has any workplans at all.
	Exists(name string) (bool, error)

	// Worktimes returns the set of worktimes present for a schedule,
	// canonicalized via UTC().
	Worktimes(name string) (map[time.Time]struct{}, error)

	// Insert atomically creates a workplan.  A zero ID is assigned;
	// Created and Updated are set from the store's clock.  Collisions
	// on either identity return ErrWorkplanExists.
	Insert(wp *Workplan) (*Workplan, error)

	// BulkUpsert writes complete rows, replacing on natural-key
	// conflict, and returns the number of rows written.
	BulkUpsert(wps []Workplan) (int, error)

	// Update applies a patch to every workplan matching the query's
	// predicate and returns the updated rows.  Ordering and
	// pagination on the query are ignored.
	Update(q Query, patch Patch) ([]Workplan, error)

	// Delete removes every workplan matching the query's predicate
	// and returns how many were removed.
	Delete(q Query) (int, error)

	// Select returns the workplans matching a query, honoring its
	// ordering and pagination.
	Select(q Query) ([]Workplan, error)

	// Count returns the number of workplans matching a query's
	// predicate.
	Count(q Query) (int, error)

	// Summarize aggregates workplan counts per (name, status).
	Summarize() ([]Summary, error)

	// Transaction runs f in a nested transactional scope against a
	// view of this store.  If f returns an error the scope rolls
	// back and the error is returned.
	Transaction(f func(Store) error) error
}
