// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

// The pgStore methods run each call in its own transaction via
// withTx(), which retries on serialization failures.  Transaction()
// hands the callback a txStore instead, whose methods share one
// *sql.Tx, and whose nested Transaction() uses savepoints.

func (s *pgStore) session(tx *sql.Tx) session {
	return session{tx: tx, clock: s.clock}
}

func (s *pgStore) ByID(id uuid.UUID) (wp *workplan.Workplan, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		wp, err = s.session(tx).byID(id)
		return err
	})
	return
}

func (s *pgStore) ByKey(name string, worktime time.Time) (wp *workplan.Workplan, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		wp, err = s.session(tx).byKey(name, worktime)
		return err
	})
	return
}

func (s *pgStore) Last(name string) (wp *workplan.Workplan, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		wp, err = s.session(tx).edge(name, true)
		return err
	})
	return
}

func (s *pgStore) First(name string) (wp *workplan.Workplan, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		wp, err = s.session(tx).edge(name, false)
		return err
	})
	return
}

func (s *pgStore) Exists(name string) (present bool, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		present, err = s.session(tx).exists(name)
		return err
	})
	return
}

func (s *pgStore) Worktimes(name string) (times map[time.Time]struct{}, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		times, err = s.session(tx).worktimes(name)
		return err
	})
	return
}

func (s *pgStore) Insert(wp *workplan.Workplan) (created *workplan.Workplan, err error) {
	err = withTx(s, false, func(tx *sql.Tx) error {
		var err error
		created, err = s.session(tx).insert(wp)
		return err
	})
	return
}

func (s *pgStore) BulkUpsert(wps []workplan.Workplan) (count int, err error) {
	err = withTx(s, false, func(tx *sql.Tx) error {
		var err error
		count, err = s.session(tx).bulkUpsert(wps)
		return err
	})
	return
}

func (s *pgStore) Update(q workplan.Query, patch workplan.Patch) (updated []workplan.Workplan, err error) {
	err = withTx(s, false, func(tx *sql.Tx) error {
		var err error
		updated, err = s.session(tx).update(q, patch)
		return err
	})
	return
}

func (s *pgStore) Delete(q workplan.Query) (count int, err error) {
	err = withTx(s, false, func(tx *sql.Tx) error {
		var err error
		count, err = s.session(tx).deleteRows(q)
		return err
	})
	return
}

func (s *pgStore) Select(q workplan.Query) (rows []workplan.Workplan, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		rows, err = s.session(tx).selectRows(q)
		return err
	})
	return
}

func (s *pgStore) Count(q workplan.Query) (count int, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		count, err = s.session(tx).count(q)
		return err
	})
	return
}

func (s *pgStore) Summarize() (summaries []workplan.Summary, err error) {
	err = withTx(s, true, func(tx *sql.Tx) error {
		var err error
		summaries, err = s.session(tx).summarize()
		return err
	})
	return
}

func (s *pgStore) Transaction(f func(workplan.Store) error) error {
	return withTx(s, false, func(tx *sql.Tx) error {
		return f(&txStore{session: s.session(tx)})
	})
}

// txStore is the view handed to transaction callbacks.  All methods
// share the enclosing *sql.Tx; depth numbers the savepoints of nested
// scopes.
type txStore struct {
	session
	depth int
}

func (t *txStore) ByID(id uuid.UUID) (*workplan.Workplan, error) { return t.byID(id) }
func (t *txStore) ByKey(name string, worktime time.Time) (*workplan.Workplan, error) {
	return t.byKey(name, worktime)
}
func (t *txStore) Last(name string) (*workplan.Workplan, error)  { return t.edge(name, true) }
func (t *txStore) First(name string) (*workplan.Workplan, error) { return t.edge(name, false) }
func (t *txStore) Exists(name string) (bool, error)              { return t.exists(name) }
func (t *txStore) Worktimes(name string) (map[time.Time]struct{}, error) {
	return t.worktimes(name)
}
func (t *txStore) Insert(wp *workplan.Workplan) (*workplan.Workplan, error) {
	return t.insert(wp)
}
func (t *txStore) BulkUpsert(wps []workplan.Workplan) (int, error) { return t.bulkUpsert(wps) }
func (t *txStore) Update(q workplan.Query, patch workplan.Patch) ([]workplan.Workplan, error) {
	return t.update(q, patch)
}
func (t *txStore) Delete(q workplan.Query) (int, error)             { return t.deleteRows(q) }
func (t *txStore) Select(q workplan.Query) ([]workplan.Workplan, error) {
	return t.selectRows(q)
}
func (t *txStore) Count(q workplan.Query) (int, error)    { return t.count(q) }
func (t *txStore) Summarize() ([]workplan.Summary, error) { return t.summarize() }

// Transaction opens a nested scope as a savepoint on the shared
// transaction.
func (t *txStore) Transaction(f func(workplan.Store) error) error {
	name := fmt.Sprintf("workplan_scope_%v", t.depth+1)
	if _, err := t.tx.Exec("SAVEPOINT " + name); err != nil {
		return err
	}
	err := f(&txStore{session: t.session, depth: t.depth + 1})
	if err != nil {
		if _, err2 := t.tx.Exec("ROLLBACK TO SAVEPOINT " + name); err2 != nil {
			return err2
		}
		return err
	}
	_, err = t.tx.Exec("RELEASE SAVEPOINT " + name)
	return err
}
