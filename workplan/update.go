// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"time"

	"github.com/satori/go.uuid"
)

// Update is a partial-update document for a single workplan,
// identified by ID if set, otherwise by the (Name, Worktime) natural
// key.  Nil fields are left untouched; explicitly clearing a nullable
// field goes through the Clear flags, mirroring Patch.
type Update struct {
	ID       uuid.UUID
	Name     string
	Worktime time.Time

	Data     map[string]interface{}
	Retries  *int
	Hash     *string
	Status   *Status
	Info     *string
	Duration *int
	Expires  *time.Time
	Started  *time.Time
	Finished *time.Time

	ClearInfo     bool
	ClearDuration bool
	ClearExpires  bool
}

// Validate checks that the update names a workplan.
func (u Update) Validate() error {
	if u.ID != uuid.Nil {
		return nil
	}
	if u.Name == "" || u.Worktime.IsZero() {
		return ErrNoIdentity
	}
	if len(u.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Identity returns the query predicate selecting the target workplan.
func (u Update) Identity() Predicate {
	if u.ID != uuid.Nil {
		return ByID(u.ID)
	}
	return And{
		ByName(u.Name),
		Cond{Field: FieldWorktime, Op: OpEqual, Value: UTC(u.Worktime)},
	}
}

// Patch converts the update document into a storage patch.
func (u Update) Patch() Patch {
	return Patch{
		Status:        u.Status,
		Hash:          u.Hash,
		Retries:       u.Retries,
		Info:          u.Info,
		Duration:      u.Duration,
		Data:          u.Data,
		Expires:       u.Expires,
		Started:       u.Started,
		Finished:      u.Finished,
		ClearInfo:     u.ClearInfo,
		ClearDuration: u.ClearDuration,
		ClearExpires:  u.ClearExpires,
	}
}

// OffsetPeriods names past slots relative to an anchor worktime, as
// multiples of the schedule interval.  Every entry must be strictly
// negative: -1 is the slot one interval before the anchor.
type OffsetPeriods []int

// PeriodsBack builds the offset list [-1, -2, ..., -n] for a positive
// count n.
func PeriodsBack(n int) (OffsetPeriods, error) {
	if n <= 0 {
		return nil, ErrBadOffsetPeriods
	}
	periods := make(OffsetPeriods, n)
	for i := range periods {
		periods[i] = -(i + 1)
	}
	return periods, nil
}

// Validate checks that the offset list is non-empty and strictly
// negative.
func (o OffsetPeriods) Validate() error {
	if len(o) == 0 {
		return ErrBadOffsetPeriods
	}
	for _, offset := range o {
		if offset >= 0 {
			return ErrBadOffsetPeriods
		}
	}
	return nil
}
