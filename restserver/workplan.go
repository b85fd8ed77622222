// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"errors"
	"time"

	"github.com/diffeo/go-workplanner/restdata"
	"github.com/diffeo/go-workplanner/workplan"
)

// WorkplanList returns the workplans matching a filter document,
// honoring its ordering and pagination.
func (api *restAPI) WorkplanList(ctx *context, in interface{}) (interface{}, error) {
	q, err := filterQuery(in)
	if err != nil {
		return nil, err
	}
	wps, err := api.Store.Select(q)
	if err != nil {
		return nil, err
	}
	return restdata.FromWorkplans(wps), nil
}

// WorkplanCount returns the number of workplans matching a filter
// document.
func (api *restAPI) WorkplanCount(ctx *context, in interface{}) (interface{}, error) {
	q, err := filterQuery(in)
	if err != nil {
		return nil, err
	}
	count, err := api.Store.Count(q)
	if err != nil {
		return nil, err
	}
	return restdata.WorkplanCount{Count: count}, nil
}

// WorkplanDelete removes every workplan matching a filter document
// and reports how many went away.
func (api *restAPI) WorkplanDelete(ctx *context, in interface{}) (interface{}, error) {
	q, err := filterQuery(in)
	if err != nil {
		return nil, err
	}
	count, err := api.Store.Delete(q)
	if err != nil {
		return nil, err
	}
	return restdata.Affected{Count: count}, nil
}

// WorkplanUpdate applies a single partial update, returning the
// updated workplan or 404 if it does not exist.
func (api *restAPI) WorkplanUpdate(ctx *context, in interface{}) (interface{}, error) {
	req, ok := in.(restdata.UpdateRequest)
	if !ok {
		return nil, errUnmarshal
	}
	u, err := req.ToUpdate()
	if err != nil {
		return nil, err
	}
	wp, err := api.Planner.Update(u)
	if err != nil {
		return nil, err
	}
	if wp == nil {
		return nil, restdata.ErrNotFound{Err: errNoSuchWorkplan}
	}
	return restdata.FromWorkplan(*wp), nil
}

// WorkplanBulkUpdate applies a batch of partial updates atomically
// and reports how many workplans actually changed.
func (api *restAPI) WorkplanBulkUpdate(ctx *context, in interface{}) (interface{}, error) {
	req, ok := in.(restdata.UpdateList)
	if !ok {
		return nil, errUnmarshal
	}
	updates := make([]workplan.Update, len(req.Updates))
	for i, r := range req.Updates {
		u, err := r.ToUpdate()
		if err != nil {
			return nil, err
		}
		updates[i] = u
	}
	count, err := api.Planner.ManyUpdate(updates)
	if err != nil {
		return nil, err
	}
	return restdata.Affected{Count: count}, nil
}

// Generate runs one full scheduling pass for a schedule and returns
// its runnable set.
func (api *restAPI) Generate(ctx *context, in interface{}) (interface{}, error) {
	req, ok := in.(restdata.GenerateRequest)
	if !ok {
		return nil, errUnmarshal
	}
	preq, err := req.ToPlanner()
	if err != nil {
		return nil, err
	}
	wps, err := api.Planner.Generate(preq)
	if err != nil {
		return nil, err
	}
	return restdata.FromWorkplans(wps), nil
}

// ExecuteList returns the runnable set of one schedule, newest
// worktime first.
func (api *restAPI) ExecuteList(ctx *context) (interface{}, error) {
	wps, err := api.Planner.ExecuteList(ctx.Name)
	if err != nil {
		return nil, err
	}
	return restdata.FromWorkplans(wps), nil
}

// Recreate deletes targeted past slots of a schedule and re-creates
// them with default status.
func (api *restAPI) Recreate(ctx *context, in interface{}) (interface{}, error) {
	req, ok := in.(restdata.RecreateRequest)
	if !ok {
		return nil, errUnmarshal
	}
	if req.Name == "" {
		return nil, workplan.ErrNoName
	}
	if req.Interval <= 0 {
		return nil, restdata.ErrBadRequest{Err: errors.New("interval must be positive")}
	}
	offsets, err := restdata.OffsetPeriodsValue(req.OffsetPeriods)
	if err != nil {
		return nil, err
	}
	var from time.Time
	if req.From != nil {
		from = *req.From
	}
	wps, err := api.Planner.RecreatePrev(req.Name, offsets, req.Interval, from, map[string]interface{}(req.Data))
	if err != nil {
		return nil, err
	}
	return restdata.FromWorkplans(wps), nil
}

// Replay re-queues a single workplan by id, returning the updated row
// or 404 if no such workplan exists.
func (api *restAPI) Replay(ctx *context, in interface{}) (interface{}, error) {
	wp, err := api.Planner.Run(ctx.ID)
	if err != nil {
		return nil, err
	}
	if wp == nil {
		return nil, restdata.ErrNotFound{Err: errNoSuchWorkplan}
	}
	return restdata.FromWorkplan(*wp), nil
}

// filterQuery compiles a decoded filter document into a storage
// query.
func filterQuery(in interface{}) (workplan.Query, error) {
	filter, ok := in.(workplan.Filter)
	if !ok {
		// An empty body means an unrestricted query
		if in == nil {
			return workplan.Query{}, nil
		}
		return workplan.Query{}, errUnmarshal
	}
	return filter.Compile()
}
