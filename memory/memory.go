// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package memory provides an in-process, in-memory implementation of
// the workplan store.  There is no persistence.  The entire table is
// behind a single mutex to protect against concurrent updates; this
// is tuned for correctness, not scalability.
//
// This is mostly intended as a reference implementation that can be
// used for testing, including in-process testing of higher-level
// components.  Transactions are implemented by snapshotting the table
// and restoring the snapshot on failure.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

// New creates a new workplan store that operates purely in memory.
func New() workplan.Store {
	return NewWithClock(clock.New())
}

// NewWithClock creates an in-memory store with an explicit time
// source.  Tests use this with a mock clock.
func NewWithClock(clk clock.Clock) workplan.Store {
	return &memStore{
		state: &state{
			clock: clk,
			rows:  make(map[uuid.UUID]*workplan.Workplan),
			keys:  make(map[rowKey]uuid.UUID),
		},
	}
}

// rowKey is the natural key of a workplan.  Worktimes are
// canonicalized before keying so that equal instants in different
// representations collide.
type rowKey struct {
	name     string
	worktime int64
}

func keyOf(name string, worktime time.Time) rowKey {
	return rowKey{name: name, worktime: workplan.UTC(worktime).Unix()}
}

// state is the shared table.  memStore locks it per call; txStore
// runs inside a scope that already holds the lock.
type state struct {
	clock clock.Clock
	rows  map[uuid.UUID]*workplan.Workplan
	keys  map[rowKey]uuid.UUID
	mu    sync.Mutex
}

// snapshot copies the table so a failed transaction can roll back.
func (st *state) snapshot() (map[uuid.UUID]*workplan.Workplan, map[rowKey]uuid.UUID) {
	rows := make(map[uuid.UUID]*workplan.Workplan, len(st.rows))
	for id, wp := range st.rows {
		rows[id] = copyRow(wp)
	}
	keys := make(map[rowKey]uuid.UUID, len(st.keys))
	for k, id := range st.keys {
		keys[k] = id
	}
	return rows, keys
}

func (st *state) restore(rows map[uuid.UUID]*workplan.Workplan, keys map[rowKey]uuid.UUID) {
	st.rows = rows
	st.keys = keys
}

func copyRow(wp *workplan.Workplan) *workplan.Workplan {
	dup := *wp
	if wp.Data != nil {
		dup.Data = make(map[string]interface{}, len(wp.Data))
		for k, v := range wp.Data {
			dup.Data[k] = v
		}
	}
	return &dup
}

// memStore is the top-level store; every method takes the global
// lock.
type memStore struct {
	state *state
}

func (m *memStore) ByID(id uuid.UUID) (*workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.byID(id)
}

func (m *memStore) ByKey(name string, worktime time.Time) (*workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.byKey(name, worktime)
}

func (m *memStore) Last(name string) (*workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.edge(name, true)
}

func (m *memStore) First(name string) (*workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.edge(name, false)
}

func (m *memStore) Exists(name string) (bool, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.exists(name)
}

func (m *memStore) Worktimes(name string) (map[time.Time]struct{}, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.worktimes(name)
}

func (m *memStore) Insert(wp *workplan.Workplan) (*workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.insert(wp)
}

func (m *memStore) BulkUpsert(wps []workplan.Workplan) (int, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.bulkUpsert(wps)
}

func (m *memStore) Update(q workplan.Query, patch workplan.Patch) ([]workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.update(q, patch)
}

func (m *memStore) Delete(q workplan.Query) (int, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.delete(q)
}

func (m *memStore) Select(q workplan.Query) ([]workplan.Workplan, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.selectRows(q)
}

func (m *memStore) Count(q workplan.Query) (int, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.count(q)
}

func (m *memStore) Summarize() ([]workplan.Summary, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.summarize()
}

func (m *memStore) Transaction(f func(workplan.Store) error) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return runScope(m.state, f)
}

// txStore is the view passed to transaction callbacks.  The global
// lock is already held, so its methods go straight to the state, and
// a nested Transaction only takes another snapshot.
type txStore struct {
	state *state
}

func (t *txStore) ByID(id uuid.UUID) (*workplan.Workplan, error) { return t.state.byID(id) }
func (t *txStore) ByKey(name string, worktime time.Time) (*workplan.Workplan, error) {
	return t.state.byKey(name, worktime)
}
func (t *txStore) Last(name string) (*workplan.Workplan, error)  { return t.state.edge(name, true) }
func (t *txStore) First(name string) (*workplan.Workplan, error) { return t.state.edge(name, false) }
func (t *txStore) Exists(name string) (bool, error)              { return t.state.exists(name) }
func (t *txStore) Worktimes(name string) (map[time.Time]struct{}, error) {
	return t.state.worktimes(name)
}
func (t *txStore) Insert(wp *workplan.Workplan) (*workplan.Workplan, error) {
	return t.state.insert(wp)
}
func (t *txStore) BulkUpsert(wps []workplan.Workplan) (int, error) { return t.state.bulkUpsert(wps) }
func (t *txStore) Update(q workplan.Query, patch workplan.Patch) ([]workplan.Workplan, error) {
	return t.state.update(q, patch)
}
func (t *txStore) Delete(q workplan.Query) (int, error)             { return t.state.delete(q) }
func (t *txStore) Select(q workplan.Query) ([]workplan.Workplan, error) {
	return t.state.selectRows(q)
}
func (t *txStore) Count(q workplan.Query) (int, error)              { return t.state.count(q) }
func (t *txStore) Summarize() ([]workplan.Summary, error)           { return t.state.summarize() }
func (t *txStore) Transaction(f func(workplan.Store) error) error   { return runScope(t.state, f) }

// runScope implements the nested transactional scope: snapshot,
// execute, and restore the snapshot if the callback fails.
func runScope(st *state, f func(workplan.Store) error) error {
	rows, keys := st.snapshot()
	err := f(&txStore{state: st})
	if err != nil {
		st.restore(rows, keys)
		return err
	}
	return nil
}

// Unlocked operations on the shared state:

func (st *state) byID(id uuid.UUID) (*workplan.Workplan, error) {
	wp := st.rows[id]
	if wp == nil {
		return nil, nil
	}
	return copyRow(wp), nil
}

func (st *state) byKey(name string, worktime time.Time) (*workplan.Workplan, error) {
	id, ok := st.keys[keyOf(name, worktime)]
	if !ok {
		return nil, nil
	}
	return copyRow(st.rows[id]), nil
}

func (st *state) edge(name string, last bool) (*workplan.Workplan, error) {
	var best *workplan.Workplan
	for _, wp := range st.rows {
		if wp.Name != name {
			continue
		}
		if best == nil {
			best = wp
			continue
		}
		if last && wp.Worktime.After(best.Worktime) {
			best = wp
		}
		if !last && wp.Worktime.Before(best.Worktime) {
			best = wp
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyRow(best), nil
}

func (st *state) exists(name string) (bool, error) {
	for _, wp := range st.rows {
		if wp.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) worktimes(name string) (map[time.Time]struct{}, error) {
	times := make(map[time.Time]struct{})
	for _, wp := range st.rows {
		if wp.Name == name {
			times[wp.Worktime] = struct{}{}
		}
	}
	return times, nil
}

func (st *state) insert(wp *workplan.Workplan) (*workplan.Workplan, error) {
	if wp.Name == "" {
		return nil, workplan.ErrNoName
	}
	if len(wp.Name) > workplan.MaxNameLength {
		return nil, workplan.ErrNameTooLong
	}

	row := copyRow(wp)
	row.Canonicalize()
	if row.ID == uuid.Nil {
		row.ID = uuid.NewV4()
	}
	now := workplan.UTC(st.clock.Now())
	row.Created = now
	row.Updated = now

	key := keyOf(row.Name, row.Worktime)
	if _, dup := st.keys[key]; dup {
		return nil, workplan.ErrWorkplanExists
	}
	if _, dup := st.rows[row.ID]; dup {
		return nil, workplan.ErrWorkplanExists
	}

	st.rows[row.ID] = row
	st.keys[key] = row.ID
	return copyRow(row), nil
}

func (st *state) bulkUpsert(wps []workplan.Workplan) (int, error) {
	now := workplan.UTC(st.clock.Now())
	for i := range wps {
		row := copyRow(&wps[i])
		row.Canonicalize()
		key := keyOf(row.Name, row.Worktime)
		if prevID, dup := st.keys[key]; dup {
			prev := st.rows[prevID]
			if row.ID == uuid.Nil {
				row.ID = prev.ID
			}
			if row.Created.IsZero() {
				row.Created = prev.Created
			}
			delete(st.rows, prevID)
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.NewV4()
		}
		if row.Created.IsZero() {
			row.Created = now
		}
		row.Updated = now
		st.rows[row.ID] = row
		st.keys[key] = row.ID
	}
	return len(wps), nil
}

func (st *state) update(q workplan.Query, patch workplan.Patch) ([]workplan.Workplan, error) {
	now := workplan.UTC(st.clock.Now())
	var updated []workplan.Workplan
	for _, wp := range st.rows {
		ok, err := match(q.Where, wp)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		applyPatch(wp, patch)
		if now.After(wp.Updated) {
			wp.Updated = now
		}
		updated = append(updated, *copyRow(wp))
	}
	return updated, nil
}

func applyPatch(wp *workplan.Workplan, patch workplan.Patch) {
	if patch.Status != nil {
		wp.Status = *patch.Status
	}
	if patch.Hash != nil {
		wp.Hash = *patch.Hash
	}
	if patch.Retries != nil {
		wp.Retries = *patch.Retries
	}
	wp.Retries += patch.AddRetries
	if patch.Info != nil {
		wp.Info = *patch.Info
	}
	if patch.Duration != nil {
		wp.Duration = *patch.Duration
	}
	if patch.Data != nil {
		wp.Data = patch.Data
	}
	if patch.Expires != nil {
		wp.Expires = workplan.UTC(*patch.Expires)
	}
	if patch.Started != nil {
		wp.Started = workplan.UTC(*patch.Started)
	}
	if patch.Finished != nil {
		wp.Finished = workplan.UTC(*patch.Finished)
	}
	if patch.ClearInfo {
		wp.Info = ""
	}
	if patch.ClearDuration {
		wp.Duration = 0
	}
	if patch.ClearExpires {
		wp.Expires = time.Time{}
	}
}

func (st *state) delete(q workplan.Query) (int, error) {
	count := 0
	for id, wp := range st.rows {
		ok, err := match(q.Where, wp)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		delete(st.rows, id)
		delete(st.keys, keyOf(wp.Name, wp.Worktime))
		count++
	}
	return count, nil
}

func (st *state) selectRows(q workplan.Query) ([]workplan.Workplan, error) {
	var rows []workplan.Workplan
	for _, wp := range st.rows {
		ok, err := match(q.Where, wp)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, *copyRow(wp))
		}
	}
	orderRows(rows, q.OrderBy)
	return paginate(rows, q.Limit, q.Offset), nil
}

func (st *state) count(q workplan.Query) (int, error) {
	count := 0
	for _, wp := range st.rows {
		ok, err := match(q.Where, wp)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (st *state) summarize() ([]workplan.Summary, error) {
	counts := make(map[workplan.Summary]int)
	for _, wp := range st.rows {
		counts[workplan.Summary{Name: wp.Name, Status: wp.Status}]++
	}
	summaries := make([]workplan.Summary, 0, len(counts))
	for key, count := range counts {
		key.Count = count
		summaries = append(summaries, key)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].Status < summaries[j].Status
	})
	return summaries, nil
}

// paginate applies limit and offset the way the port documents:
// a negative offset counts back from the end of the result set.
func paginate(rows []workplan.Workplan, limit, offset int) []workplan.Workplan {
	if offset < 0 {
		offset += len(rows)
		if offset < 0 {
			offset = 0
		}
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
