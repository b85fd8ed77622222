// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/lib/pq"
	"github.com/satori/go.uuid"
)

// session is one transaction's view of the workplan table.  Both the
// per-call wrappers on pgStore and the nested-scope txStore run every
// row operation through it.
type session struct {
	tx    *sql.Tx
	clock clock.Clock
}

func (s session) now() time.Time {
	return workplan.UTC(s.clock.Now())
}

// scanWorkplan decodes one full row in workplanColumns() order.
func scanWorkplan(scan func(...interface{}) error) (*workplan.Workplan, error) {
	var (
		wp       workplan.Workplan
		status   string
		info     sql.NullString
		data     sql.NullString
		duration sql.NullInt64
		expires  pq.NullTime
		started  pq.NullTime
		finished pq.NullTime
	)
	err := scan(&wp.ID, &wp.Name, &wp.Worktime, &status, &wp.Hash,
		&wp.Retries, &info, &data, &duration, &expires, &started,
		&finished, &wp.Created, &wp.Updated)
	if err != nil {
		return nil, err
	}
	wp.Status, err = workplan.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	wp.Info = info.String
	wp.Data, err = sqlToData(data)
	if err != nil {
		return nil, err
	}
	wp.Duration = int(duration.Int64)
	wp.Expires = nullTimeToTime(expires)
	wp.Started = nullTimeToTime(started)
	wp.Finished = nullTimeToTime(finished)
	wp.Canonicalize()
	return &wp, nil
}

func (s session) byID(id uuid.UUID) (*workplan.Workplan, error) {
	return s.selectOne(workplan.Query{Where: workplan.ByID(id)})
}

func (s session) byKey(name string, worktime time.Time) (*workplan.Workplan, error) {
	return s.selectOne(workplan.Query{Where: workplan.And{
		workplan.ByName(name),
		workplan.Cond{Field: workplan.FieldWorktime, Op: workplan.OpEqual, Value: workplan.UTC(worktime)},
	}})
}

func (s session) edge(name string, last bool) (*workplan.Workplan, error) {
	return s.selectOne(workplan.Query{
		Where:   workplan.ByName(name),
		OrderBy: []workplan.Order{{Field: workplan.FieldWorktime, Descending: last}},
	})
}

// selectOne runs a query with LIMIT 1 and returns (nil, nil) when
// nothing matches.
func (s session) selectOne(q workplan.Query) (*workplan.Workplan, error) {
	q.Limit = 1
	q.Offset = 0
	rows, err := s.selectRows(q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (s session) exists(name string) (bool, error) {
	params := queryParams{}
	query := buildSelect([]string{"1"}, []string{workplanTable},
		[]string{"name=" + params.Param(name)}) + " LIMIT 1"
	var one int
	err := s.tx.QueryRow(query, params...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s session) worktimes(name string) (map[time.Time]struct{}, error) {
	params := queryParams{}
	query := buildSelect([]string{"worktime_utc"}, []string{workplanTable},
		[]string{"name=" + params.Param(name)})
	rows, err := s.tx.Query(query, params...)
	if err != nil {
		return nil, err
	}
	times := make(map[time.Time]struct{})
	err = scanRows(rows, func() error {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return err
		}
		times[workplan.UTC(t)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return times, nil
}

// insertFields builds the full column list for one row.
func insertFields(params *queryParams, row *workplan.Workplan, data sql.NullString) fieldList {
	fields := fieldList{}
	fields.Add(params, "id", row.ID.String())
	fields.Add(params, "name", row.Name)
	fields.Add(params, "worktime_utc", row.Worktime)
	fields.Add(params, "status", row.Status.String())
	fields.Add(params, "hash", row.Hash)
	fields.Add(params, "retries", row.Retries)
	fields.Add(params, "info", stringToNullString(row.Info))
	fields.Add(params, "data", data)
	fields.Add(params, "duration", intToNullInt64(row.Duration))
	fields.Add(params, "expires_utc", timeToNullTime(row.Expires))
	fields.Add(params, "started_utc", timeToNullTime(row.Started))
	fields.Add(params, "finished_utc", timeToNullTime(row.Finished))
	fields.Add(params, "created_utc", row.Created)
	fields.Add(params, "updated_utc", row.Updated)
	return fields
}

func (s session) insert(wp *workplan.Workplan) (*workplan.Workplan, error) {
	if wp.Name == "" {
		return nil, workplan.ErrNoName
	}
	if len(wp.Name) > workplan.MaxNameLength {
		return nil, workplan.ErrNameTooLong
	}

	row := *wp
	row.Canonicalize()
	if uuid.Equal(row.ID, uuid.Nil) {
		row.ID = uuid.NewV4()
	}
	now := s.now()
	row.Created = now
	row.Updated = now

	data, err := dataToSQL(row.Data)
	if err != nil {
		return nil, err
	}
	params := queryParams{}
	fields := insertFields(&params, &row, data)
	// DO NOTHING keeps an identity collision from aborting an
	// enclosing transaction; zero rows affected is the signal.
	query := fields.InsertStatement(workplanTable) + " ON CONFLICT DO NOTHING"
	res, err := s.tx.Exec(query, params...)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, workplan.ErrWorkplanExists
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, workplan.ErrWorkplanExists
	}
	return &row, nil
}

func (s session) bulkUpsert(wps []workplan.Workplan) (int, error) {
	now := s.now()
	for i := range wps {
		row := wps[i]
		if row.Name == "" {
			return 0, workplan.ErrNoName
		}
		if len(row.Name) > workplan.MaxNameLength {
			return 0, workplan.ErrNameTooLong
		}
		row.Canonicalize()
		if uuid.Equal(row.ID, uuid.Nil) {
			row.ID = uuid.NewV4()
		}
		hadCreated := !row.Created.IsZero()
		if !hadCreated {
			row.Created = now
		}
		row.Updated = now

		data, err := dataToSQL(row.Data)
		if err != nil {
			return 0, err
		}
		params := queryParams{}
		fields := insertFields(&params, &row, data)

		// On natural-key conflict the row is replaced in place,
		// keeping the existing id, and keeping the existing
		// created_utc unless the caller supplied one.
		changes := []string{}
		for _, name := range fields.FieldNames() {
			switch name {
			case "id":
				continue
			case "created_utc":
				if !hadCreated {
					continue
				}
			}
			changes = append(changes, name+"=EXCLUDED."+name)
		}
		query := fields.InsertStatement(workplanTable) +
			" ON CONFLICT ON CONSTRAINT workplan_unique_worktime" +
			" DO UPDATE SET " + strings.Join(changes, ", ")
		_, err = s.tx.Exec(query, params...)
		if err != nil {
			return 0, err
		}
	}
	return len(wps), nil
}

func (s session) update(q workplan.Query, patch workplan.Patch) ([]workplan.Workplan, error) {
	params := queryParams{}
	fields := fieldList{}
	if patch.Status != nil {
		fields.Add(&params, "status", patch.Status.String())
	}
	if patch.Hash != nil {
		fields.Add(&params, "hash", *patch.Hash)
	}
	if patch.Retries != nil {
		fields.Add(&params, "retries", *patch.Retries+patch.AddRetries)
	} else if patch.AddRetries != 0 {
		fields.AddDirect("retries", "retries + "+params.Param(patch.AddRetries))
	}
	if patch.ClearInfo {
		fields.AddDirect("info", "NULL")
	} else if patch.Info != nil {
		fields.Add(&params, "info", stringToNullString(*patch.Info))
	}
	if patch.Data != nil {
		data, err := dataToSQL(patch.Data)
		if err != nil {
			return nil, err
		}
		fields.Add(&params, "data", data)
	}
	if patch.ClearDuration {
		fields.AddDirect("duration", "NULL")
	} else if patch.Duration != nil {
		fields.Add(&params, "duration", intToNullInt64(*patch.Duration))
	}
	if patch.ClearExpires {
		fields.AddDirect("expires_utc", "NULL")
	} else if patch.Expires != nil {
		fields.Add(&params, "expires_utc", timeToNullTime(workplan.UTC(*patch.Expires)))
	}
	if patch.Started != nil {
		fields.Add(&params, "started_utc", timeToNullTime(workplan.UTC(*patch.Started)))
	}
	if patch.Finished != nil {
		fields.Add(&params, "finished_utc", timeToNullTime(workplan.UTC(*patch.Finished)))
	}
	// Updated only moves forward, even with a frozen test clock
	fields.AddDirect("updated_utc", "GREATEST(updated_utc, "+params.Param(s.now())+")")

	cond, err := predicateSQL(q.Where, &params)
	if err != nil {
		return nil, err
	}
	query := buildUpdate(workplanTable, fields.UpdateChanges(), []string{cond}) +
		" RETURNING " + strings.Join(workplanColumns(), ", ")
	rows, err := s.tx.Query(query, params...)
	if err != nil {
		return nil, err
	}
	var updated []workplan.Workplan
	err = scanRows(rows, func() error {
		wp, err := scanWorkplan(rows.Scan)
		if err != nil {
			return err
		}
		updated = append(updated, *wp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s session) deleteRows(q workplan.Query) (int, error) {
	params := queryParams{}
	cond, err := predicateSQL(q.Where, &params)
	if err != nil {
		return 0, err
	}
	query := buildDelete(workplanTable, []string{cond})
	res, err := s.tx.Exec(query, params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s session) selectRows(q workplan.Query) ([]workplan.Workplan, error) {
	params := queryParams{}
	cond, err := predicateSQL(q.Where, &params)
	if err != nil {
		return nil, err
	}

	offset := q.Offset
	if offset < 0 {
		// A negative offset counts back from the end of the
		// result set, which needs the total size up front.
		total, err := s.countWhere(cond, params)
		if err != nil {
			return nil, err
		}
		offset += total
		if offset < 0 {
			offset = 0
		}
	}

	query := buildSelect(workplanColumns(), []string{workplanTable}, []string{cond})
	query += orderBySQL(q.OrderBy)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := s.tx.Query(query, params...)
	if err != nil {
		return nil, err
	}
	var out []workplan.Workplan
	err = scanRows(rows, func() error {
		wp, err := scanWorkplan(rows.Scan)
		if err != nil {
			return err
		}
		out = append(out, *wp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s session) count(q workplan.Query) (int, error) {
	params := queryParams{}
	cond, err := predicateSQL(q.Where, &params)
	if err != nil {
		return 0, err
	}
	return s.countWhere(cond, params)
}

func (s session) countWhere(cond string, params queryParams) (int, error) {
	query := buildSelect([]string{"COUNT(*)"}, []string{workplanTable}, []string{cond})
	var count int
	err := s.tx.QueryRow(query, params...).Scan(&count)
	return count, err
}

func (s session) summarize() ([]workplan.Summary, error) {
	query := "SELECT name, status, COUNT(*) FROM " + workplanTable +
		" GROUP BY name, status"
	rows, err := s.tx.Query(query)
	if err != nil {
		return nil, err
	}
	var summaries []workplan.Summary
	err = scanRows(rows, func() error {
		var (
			summary workplan.Summary
			status  string
		)
		if err := rows.Scan(&summary.Name, &status, &summary.Count); err != nil {
			return err
		}
		var err error
		summary.Status, err = workplan.ParseStatus(status)
		if err != nil {
			return err
		}
		summaries = append(summaries, summary)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Sort here, not in SQL: statuses order by lifecycle position,
	// not by their stored names.
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].Status < summaries[j].Status
	})
	return summaries, nil
}
