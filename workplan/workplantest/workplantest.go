// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package workplantest provides generic functional tests for the
// workplan store interface.  A typical backend test module needs to
// wrap Suite to create its backend:
//
//	package mybackend
//
//	import (
//	        "testing"
//	        "github.com/diffeo/go-workplanner/workplan/workplantest"
//	        "github.com/stretchr/testify/suite"
//	)
//
//	// Suite is the per-backend generic test suite.
//	type Suite struct{
//	        workplantest.Suite
//	}
//
//	// SetupSuite does global setup for the test suite.
//	func (s *Suite) SetupSuite() {
//	        s.Suite.SetupSuite()
//	        s.Store = NewWithClock(s.Clock)
//	}
//
//	// TestStore runs the store generic tests.
//	func TestStore(t *testing.T) {
//	        suite.Run(t, &Suite{})
//	}
//
// Tests use distinct schedule names so that backends with persistent
// state can run the whole suite against one database.
package workplantest

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/stretchr/testify/suite"
)

// Suite is the generic workplan store test suite.
type Suite struct {
	suite.Suite

	// Clock contains the alternate time source to be used in tests.
	// It is pre-initialized to a mock clock.
	Clock *clock.Mock

	// Store contains the backend under test.  It is set by importing
	// packages.
	Store workplan.Store
}

// SetupSuite does one-time initialization for the test suite.
func (s *Suite) SetupSuite() {
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2022, time.November, 11, 11, 11, 11, 0, time.UTC))
}

// now returns the mock clock's time in canonical form.
func (s *Suite) now() time.Time {
	return workplan.UTC(s.Clock.Now())
}

// insert creates a workplan, failing the test on error.
func (s *Suite) insert(wp workplan.Workplan) *workplan.Workplan {
	created, err := s.Store.Insert(&wp)
	s.Require().NoError(err)
	s.Require().NotNil(created)
	return created
}

// sched populates one schedule with slots one hour apart ending at
// the mock now, with the given statuses from oldest to newest, and
// returns the created slots in that order.
func (s *Suite) sched(name string, statuses ...workplan.Status) []workplan.Workplan {
	slots := make([]workplan.Workplan, len(statuses))
	base := s.now().Add(-time.Duration(len(statuses)-1) * time.Hour)
	for i, status := range statuses {
		wp := s.insert(workplan.Workplan{
			Name:     name,
			Worktime: base.Add(time.Duration(i) * time.Hour),
			Status:   status,
		})
		slots[i] = *wp
	}
	return slots
}

// names extracts the worktimes of a result set for order assertions.
func worktimes(wps []workplan.Workplan) []time.Time {
	times := make([]time.Time, len(wps))
	for i, wp := range wps {
		times[i] = wp.Worktime
	}
	return times
}
