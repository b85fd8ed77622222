// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2022, time.November, 11, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return base.Add(time.Duration(hours) * time.Hour)
}

func TestRange(t *testing.T) {
	times, err := Range(at(0), at(3), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, []time.Time{at(0), at(1), at(2), at(3)}, times)
	}
}

func TestRangeEndNotOnGrid(t *testing.T) {
	times, err := Range(at(0), at(2).Add(30*time.Minute), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, []time.Time{at(0), at(1), at(2)}, times)
	}
}

func TestRangeSingle(t *testing.T) {
	times, err := Range(at(1), at(1), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, []time.Time{at(1)}, times)
	}
}

func TestRangeEmpty(t *testing.T) {
	times, err := Range(at(1), at(0), time.Hour)
	assert.NoError(t, err)
	assert.Empty(t, times)
}

func TestRangeBadStep(t *testing.T) {
	_, err := Range(at(0), at(1), 0)
	assert.Equal(t, ErrNonPositiveStep, err)

	_, err = Range(at(0), at(1), -time.Hour)
	assert.Equal(t, ErrNonPositiveStep, err)
}

func TestIterLazy(t *testing.T) {
	it, err := Iter(at(0), at(1), time.Hour)
	if !assert.NoError(t, err) {
		return
	}
	next, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, at(0), next)
	next, ok = it.Next()
	assert.True(t, ok)
	assert.Equal(t, at(1), next)
	_, ok = it.Next()
	assert.False(t, ok)
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestSnapBack(t *testing.T) {
	// Exactly on the grid
	snapped, err := SnapBack(at(0), at(2), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, at(2), snapped)
	}

	// Between boundaries, snaps to the last one
	snapped, err = SnapBack(at(0), at(2).Add(59*time.Minute), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, at(2), snapped)
	}

	// Anchor equal to now
	snapped, err = SnapBack(at(0), at(0), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, at(0), snapped)
	}

	// Anchor in the future comes back unchanged
	snapped, err = SnapBack(at(5), at(2), time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, at(5), snapped)
	}

	_, err = SnapBack(at(0), at(2), 0)
	assert.Equal(t, ErrNonPositiveStep, err)
}

func TestGroupContiguous(t *testing.T) {
	runs, err := GroupContiguous([]time.Time{at(5), at(1), at(0), at(3), at(1)}, time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, []Run{
			{First: at(0), Last: at(1)},
			{First: at(3), Last: at(3)},
			{First: at(5), Last: at(5)},
		}, runs)
	}
}

func TestGroupContiguousSingleRun(t *testing.T) {
	runs, err := GroupContiguous([]time.Time{at(2), at(0), at(1)}, time.Hour)
	if assert.NoError(t, err) {
		assert.Equal(t, []Run{{First: at(0), Last: at(2)}}, runs)
	}
}

func TestGroupContiguousEmpty(t *testing.T) {
	runs, err := GroupContiguous(nil, time.Hour)
	assert.NoError(t, err)
	assert.Nil(t, runs)
}
