// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"testing"
	"time"

	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
)

func TestUpdateValidate(t *testing.T) {
	assert.NoError(t, Update{ID: uuid.NewV4()}.Validate())
	assert.NoError(t, Update{Name: "daily", Worktime: time.Now()}.Validate())

	assert.Equal(t, ErrNoIdentity, Update{}.Validate())
	assert.Equal(t, ErrNoIdentity, Update{Name: "daily"}.Validate())
	assert.Equal(t, ErrNoIdentity, Update{Worktime: time.Now()}.Validate())

	long := make([]byte, MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	err := Update{Name: string(long), Worktime: time.Now()}.Validate()
	assert.Equal(t, ErrNameTooLong, err)
}

func TestUpdateIdentity(t *testing.T) {
	id := uuid.NewV4()
	assert.Equal(t, ByID(id), Update{ID: id}.Identity())

	worktime := time.Date(2022, time.November, 11, 12, 0, 0, 0, time.FixedZone("ET", -5*60*60))
	identity := Update{Name: "daily", Worktime: worktime}.Identity()
	assert.Equal(t, And{
		ByName("daily"),
		Cond{Field: FieldWorktime, Op: OpEqual, Value: UTC(worktime)},
	}, identity)

	// ID wins when both identities are present
	assert.Equal(t, ByID(id), Update{ID: id, Name: "daily", Worktime: worktime}.Identity())
}

func TestPeriodsBack(t *testing.T) {
	periods, err := PeriodsBack(3)
	if assert.NoError(t, err) {
		assert.Equal(t, OffsetPeriods{-1, -2, -3}, periods)
		assert.NoError(t, periods.Validate())
	}

	_, err = PeriodsBack(0)
	assert.Equal(t, ErrBadOffsetPeriods, err)
	_, err = PeriodsBack(-2)
	assert.Equal(t, ErrBadOffsetPeriods, err)
}

func TestOffsetPeriodsValidate(t *testing.T) {
	assert.NoError(t, OffsetPeriods{-1, -5}.Validate())
	assert.Equal(t, ErrBadOffsetPeriods, OffsetPeriods{}.Validate())
	assert.Equal(t, ErrBadOffsetPeriods, OffsetPeriods{-1, 0}.Validate())
	assert.Equal(t, ErrBadOffsetPeriods, OffsetPeriods{-1, 2}.Validate())
}
