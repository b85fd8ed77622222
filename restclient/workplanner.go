// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restclient provides an HTTP REST client that talks to the
// matching server in the "restserver" package.
//
// The daemon in github.com/diffeo/go-workplanner/cmd/workplannerd
// runs a compatible REST server.  Call New() with the base URL of
// that service; for instance,
//
//	c, err := restclient.New("http://localhost:5990/")
//
// The client navigates from the root document, so the only URL it
// needs to know is the root one.  Workers typically poll
// ExecuteList() for runnable slots and report outcomes back through
// Update().
package restclient

import (
	"net/url"

	"github.com/diffeo/go-workplanner/restdata"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

// Client speaks to an external workplanner REST server.
type Client struct {
	root resource
	data restdata.RootData
}

// New creates a new client from the base URL of a workplanner REST
// server.  It fetches the root document immediately, so it fails fast
// if the server is unreachable.
func New(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{root: resource{URL: parsed}}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh re-fetches the root document and its endpoint URLs.
func (c *Client) Refresh() error {
	return c.root.Get(&c.data)
}

// List returns the workplans matching a filter document, honoring its
// ordering and pagination.
func (c *Client) List(filter workplan.Filter) ([]workplan.Workplan, error) {
	var list restdata.WorkplanList
	err := c.root.PostTo(c.data.WorkplanListURL, nil, filter, &list)
	if err != nil {
		return nil, err
	}
	return toWorkplans(list)
}

// Count returns the number of workplans matching a filter document.
func (c *Client) Count(filter workplan.Filter) (int, error) {
	var count restdata.WorkplanCount
	err := c.root.PostTo(c.data.WorkplanCountURL, nil, filter, &count)
	if err != nil {
		return 0, err
	}
	return count.Count, nil
}

// Delete removes every workplan matching a filter document and
// returns how many went away.
func (c *Client) Delete(filter workplan.Filter) (int, error) {
	var affected restdata.Affected
	err := c.root.PostTo(c.data.WorkplanDeleteURL, nil, filter, &affected)
	if err != nil {
		return 0, err
	}
	return affected.Count, nil
}

// Update applies a single partial update.  Returns nil without error
// if the identified workplan does not exist.
func (c *Client) Update(req restdata.UpdateRequest) (*workplan.Workplan, error) {
	var wire restdata.Workplan
	err := c.root.PostTo(c.data.WorkplanUpdateURL, nil, req, &wire)
	if err != nil {
		return nil, absentToNil(err)
	}
	return toWorkplan(wire)
}

// ManyUpdate applies a batch of partial updates atomically, returning
// how many workplans actually changed.
func (c *Client) ManyUpdate(updates []restdata.UpdateRequest) (int, error) {
	var affected restdata.Affected
	err := c.root.PostTo(c.data.WorkplanBulkUpdateURL, nil,
		restdata.UpdateList{Updates: updates}, &affected)
	if err != nil {
		return 0, err
	}
	return affected.Count, nil
}

// Generate runs one full scheduling pass for a schedule and returns
// its runnable set, newest worktime first.
func (c *Client) Generate(req restdata.GenerateRequest) ([]workplan.Workplan, error) {
	var list restdata.WorkplanList
	err := c.root.PostTo(c.data.GenerateURL, nil, req, &list)
	if err != nil {
		return nil, err
	}
	return toWorkplans(list)
}

// ExecuteList returns the runnable set of one schedule, newest
// worktime first.
func (c *Client) ExecuteList(name string) ([]workplan.Workplan, error) {
	var list restdata.WorkplanList
	err := c.root.GetFrom(c.data.ExecuteListURL,
		map[string]interface{}{"name": name}, &list)
	if err != nil {
		return nil, err
	}
	return toWorkplans(list)
}

// Recreate deletes targeted past slots of a schedule and re-creates
// them with default status, returning the new rows.
func (c *Client) Recreate(req restdata.RecreateRequest) ([]workplan.Workplan, error) {
	var list restdata.WorkplanList
	err := c.root.PostTo(c.data.RecreateURL, nil, req, &list)
	if err != nil {
		return nil, err
	}
	return toWorkplans(list)
}

// Replay re-queues a single workplan by id.  Returns nil without
// error if no such workplan exists.
func (c *Client) Replay(id uuid.UUID) (*workplan.Workplan, error) {
	var wire restdata.Workplan
	err := c.root.PostTo(c.data.ReplayURL,
		map[string]interface{}{"id": id.String()}, nil, &wire)
	if err != nil {
		return nil, absentToNil(err)
	}
	return toWorkplan(wire)
}

func toWorkplan(wire restdata.Workplan) (*workplan.Workplan, error) {
	wp, err := wire.ToWorkplan()
	if err != nil {
		return nil, err
	}
	return &wp, nil
}

func toWorkplans(list restdata.WorkplanList) ([]workplan.Workplan, error) {
	wps := make([]workplan.Workplan, len(list.Workplans))
	for i, wire := range list.Workplans {
		wp, err := wire.ToWorkplan()
		if err != nil {
			return nil, err
		}
		wps[i] = wp
	}
	return wps, nil
}

// absentToNil strips the wrapper off a 404 so single-workplan lookups
// can keep the (nil, nil) absence contract.
func absentToNil(err error) error {
	if _, isNotFound := err.(restdata.ErrNotFound); isNotFound {
		return nil
	}
	return err
}
