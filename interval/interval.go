// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package interval provides arithmetic over fixed-interval schedules:
// lazy enumeration of instants, snapping an instant to the last full
// interval boundary, and grouping scattered instants into contiguous
// runs.
package interval

import (
	"errors"
	"sort"
	"time"
)

// ErrNonPositiveStep is returned by every function here when the
// interval step is zero or negative.
var ErrNonPositiveStep = errors.New("interval step must be positive")

// Iterator lazily enumerates start, start+step, ... while <= end.
type Iterator struct {
	next time.Time
	end  time.Time
	step time.Duration
}

// Iter creates an iterator over the instants start, start+step, ...
// up to and including end.  If start is after end the iterator is
// empty.
func Iter(start, end time.Time, step time.Duration) (*Iterator, error) {
	if step <= 0 {
		return nil, ErrNonPositiveStep
	}
	return &Iterator{next: start, end: end, step: step}, nil
}

// Next returns the next instant in the sequence, or false when the
// sequence is exhausted.
func (it *Iterator) Next() (time.Time, bool) {
	if it.next.After(it.end) {
		return time.Time{}, false
	}
	t := it.next
	it.next = it.next.Add(it.step)
	return t, true
}

// Range materializes the full sequence of Iter.
func Range(start, end time.Time, step time.Duration) ([]time.Time, error) {
	it, err := Iter(start, end, step)
	if err != nil {
		return nil, err
	}
	var times []time.Time
	for {
		t, ok := it.Next()
		if !ok {
			return times, nil
		}
		times = append(times, t)
	}
}

// SnapBack returns the greatest instant b <= now such that
// b = anchor + k*step for a non-negative integer k.  If the anchor
// itself is after now there is no such instant and the anchor is
// returned unchanged.
func SnapBack(anchor, now time.Time, step time.Duration) (time.Time, error) {
	if step <= 0 {
		return time.Time{}, ErrNonPositiveStep
	}
	if anchor.After(now) {
		return anchor, nil
	}
	k := now.Sub(anchor) / step
	return anchor.Add(k * step), nil
}

// Run is a maximal contiguous sequence of instants spaced exactly one
// step apart, described by its endpoints.
type Run struct {
	First time.Time
	Last  time.Time
}

// GroupContiguous deduplicates and sorts the given instants, then
// groups them into maximal runs where each successive element differs
// by exactly step.  An isolated instant forms a run with
// First == Last.
func GroupContiguous(times []time.Time, step time.Duration) ([]Run, error) {
	if step <= 0 {
		return nil, ErrNonPositiveStep
	}
	if len(times) == 0 {
		return nil, nil
	}

	unique := make(map[time.Time]struct{}, len(times))
	for _, t := range times {
		unique[t] = struct{}{}
	}
	sorted := make([]time.Time, 0, len(unique))
	for t := range unique {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var runs []Run
	run := Run{First: sorted[0], Last: sorted[0]}
	for _, t := range sorted[1:] {
		if t.Sub(run.Last) == step {
			run.Last = t
			continue
		}
		runs = append(runs, run)
		run = Run{First: t, Last: t}
	}
	runs = append(runs, run)
	return runs, nil
}
