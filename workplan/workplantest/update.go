// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplantest

import (
	"errors"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
)

// TestUpdatePatch applies pointer fields of a patch.
func (s *Suite) TestUpdatePatch() {
	s.sched("update-patch", workplan.StatusAdd)

	status := workplan.StatusRun
	info := "picked up"
	duration := 42
	started := s.now()
	updated, err := s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-patch")},
		workplan.Patch{
			Status:   &status,
			Info:     &info,
			Duration: &duration,
			Started:  &started,
			Data:     map[string]interface{}{"attempt": "first"},
		})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(workplan.StatusRun, updated[0].Status)
	s.Equal("picked up", updated[0].Info)
	s.Equal(42, updated[0].Duration)
	s.Equal(started, updated[0].Started)
	s.Equal(map[string]interface{}{"attempt": "first"}, updated[0].Data)

	// The returned rows match what a fresh read sees
	fresh, err := s.Store.ByID(updated[0].ID)
	if s.NoError(err) && s.NotNil(fresh) {
		s.Equal(updated[0].Status, fresh.Status)
		s.Equal(updated[0].Info, fresh.Info)
		s.Equal(updated[0].Duration, fresh.Duration)
	}
}

// TestUpdateRetries covers both the absolute and relative retry
// fields.
func (s *Suite) TestUpdateRetries() {
	s.sched("update-retries", workplan.StatusError)

	updated, err := s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-retries")},
		workplan.Patch{AddRetries: 1})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(1, updated[0].Retries)

	updated, err = s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-retries")},
		workplan.Patch{AddRetries: 2})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(3, updated[0].Retries)

	retries := 0
	updated, err = s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-retries")},
		workplan.Patch{Retries: &retries})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(0, updated[0].Retries)
}

// TestUpdateClear sets nullable fields back to null.
func (s *Suite) TestUpdateClear() {
	expires := s.now().Add(time.Hour)
	s.insert(workplan.Workplan{
		Name:     "update-clear",
		Worktime: s.now(),
		Info:     "stale diagnostics",
		Duration: 17,
		Expires:  expires,
	})

	updated, err := s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-clear")},
		workplan.Patch{ClearInfo: true, ClearDuration: true, ClearExpires: true})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal("", updated[0].Info)
	s.Equal(0, updated[0].Duration)
	s.True(updated[0].Expires.IsZero())
}

// TestUpdateTimestamp checks that Updated advances with the clock and
// never moves backwards.
func (s *Suite) TestUpdateTimestamp() {
	s.sched("update-timestamp", workplan.StatusAdd)
	createdAt := s.now()

	s.Clock.Add(time.Minute)
	status := workplan.StatusQueue
	updated, err := s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-timestamp")},
		workplan.Patch{Status: &status})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(createdAt.Add(time.Minute), updated[0].Updated)
	s.Equal(createdAt, updated[0].Created)

	// A second patch under a frozen clock keeps the same stamp
	status = workplan.StatusRun
	updated, err = s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-timestamp")},
		workplan.Patch{Status: &status})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(createdAt.Add(time.Minute), updated[0].Updated)
}

// TestUpdateNoMatch returns an empty set, not an error.
func (s *Suite) TestUpdateNoMatch() {
	status := workplan.StatusRun
	updated, err := s.Store.Update(
		workplan.Query{Where: workplan.ByName("update-no-match")},
		workplan.Patch{Status: &status})
	s.NoError(err)
	s.Len(updated, 0)
}

// TestDelete removes by predicate and reports the count.
func (s *Suite) TestDelete() {
	slots := s.sched("delete", workplan.StatusAdd, workplan.StatusError, workplan.StatusError)

	count, err := s.Store.Delete(workplan.Query{Where: workplan.And{
		workplan.ByName("delete"),
		workplan.StatusIn(workplan.StatusError),
	}})
	s.NoError(err)
	s.Equal(2, count)

	remaining, err := s.Store.Select(workplan.Query{Where: workplan.ByName("delete")})
	if s.NoError(err) && s.Len(remaining, 1) {
		s.Equal(slots[0].Worktime, remaining[0].Worktime)
	}

	// Deleting a deleted worktime frees its natural key
	_, err = s.Store.Insert(&workplan.Workplan{Name: "delete", Worktime: slots[1].Worktime})
	s.NoError(err)

	count, err = s.Store.Delete(workplan.Query{Where: workplan.ByName("delete-nothing")})
	s.NoError(err)
	s.Equal(0, count)
}

// TestTransactionRollback undoes every effect of a failed scope.
func (s *Suite) TestTransactionRollback() {
	s.sched("tx-rollback", workplan.StatusAdd)

	boom := errors.New("boom")
	err := s.Store.Transaction(func(tx workplan.Store) error {
		_, err := tx.Insert(&workplan.Workplan{
			Name:     "tx-rollback",
			Worktime: s.now().Add(time.Hour),
		})
		if err != nil {
			return err
		}
		status := workplan.StatusError
		_, err = tx.Update(
			workplan.Query{Where: workplan.ByName("tx-rollback")},
			workplan.Patch{Status: &status})
		if err != nil {
			return err
		}
		return boom
	})
	s.Equal(boom, err)

	rows, err := s.Store.Select(workplan.Query{Where: workplan.ByName("tx-rollback")})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal(workplan.StatusAdd, rows[0].Status)
	}
}

// TestTransactionCommit makes writes of a successful scope visible.
func (s *Suite) TestTransactionCommit() {
	err := s.Store.Transaction(func(tx workplan.Store) error {
		for i := 0; i < 3; i++ {
			_, err := tx.Insert(&workplan.Workplan{
				Name:     "tx-commit",
				Worktime: s.now().Add(time.Duration(i) * time.Hour),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	s.NoError(err)

	count, err := s.Store.Count(workplan.Query{Where: workplan.ByName("tx-commit")})
	s.NoError(err)
	s.Equal(3, count)
}

// TestTransactionNested rolls an inner scope back while the outer one
// commits.
func (s *Suite) TestTransactionNested() {
	boom := errors.New("boom")
	err := s.Store.Transaction(func(tx workplan.Store) error {
		_, err := tx.Insert(&workplan.Workplan{
			Name:     "tx-nested",
			Worktime: s.now(),
		})
		if err != nil {
			return err
		}
		err = tx.Transaction(func(inner workplan.Store) error {
			_, err := inner.Insert(&workplan.Workplan{
				Name:     "tx-nested",
				Worktime: s.now().Add(time.Hour),
			})
			if err != nil {
				return err
			}
			return boom
		})
		if err != boom {
			return err
		}
		// The inner failure was absorbed; keep the outer work
		return nil
	})
	s.NoError(err)

	rows, err := s.Store.Select(workplan.Query{Where: workplan.ByName("tx-nested")})
	if s.NoError(err) && s.Len(rows, 1) {
		s.Equal(s.now(), rows[0].Worktime)
	}
}
