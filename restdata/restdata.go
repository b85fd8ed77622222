// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restdata defines common data structures shared between the
// restserver and restclient packages.  Generally JSON encodings of
// these are passed across the wire as the
// application/vnd.diffeo.workplanner.v1+json MIME type.
//
// In spite of the "v1" label this representation is not considered
// fully stable yet.
//
// API Usage
//
// HTTP GET the root document at its specified URL.  This will return
// a JSON serialization of the RootData object.  That serialization
// has links to other resources; follow these links, possibly filling
// in template values, to get to other resources.
//
// Some of the URL fields are actually RFC 6570 URI templates.  This
// is a fancy way of saying that they are URL strings with a
// {parameter} in curly braces.  For instance, if the system is rooted
// at /, a JSON serialization of RootData will look like
//
//	{
//	    "workplan_list_url": "/workplans/list",
//	    "execute_list_url": "/workplans/execute/{name}/list",
//	    ...
//	}
//
// While the URL structure is predictable and formulaic, it is not
// actually part of the API contract.  The only specific guarantee is
// that retrieving the root resource will return a serialization of
// RootData.
//
// Encoding Considerations
//
// A schedule name that appears in a URL path must be made of ASCII
// characters that can be represented unescaped.  Other names are
// escaped by encoding their byte representations using the base64
// URL-safe encoding with no padding, and prepending a hyphen to the
// name.  Names that would be otherwise safe and begin with hyphens
// are also encoded.
//
// Timestamps, when they appear, are represented in JSON as RFC 3339
// strings, "2012-03-04T05:06:07Z", and are stored at second
// precision in UTC.  Durations, when they appear, are represented in
// JSON as a number of nanoseconds.
//
// The query endpoints (list, count, delete) accept a serialization of
// the workplan.Filter document as their request body.
//
// Errors
//
// Most errors should be returned as encodings of the ErrorResponse
// type.  This can round-trip all of the workplan package's errors but
// may return most other errors as plain strings that are not the same
// objects as other standard errors.
//
// If Go server code panics, this should be captured and returned as
// an ErrorResponse with error code "panic".
package restdata

import (
	"time"

	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/satori/go.uuid"
)

// V1JSONMediaType is the preferred, most specific MIME type for the
// JSON representation of this content.
const V1JSONMediaType = "application/vnd.diffeo.workplanner.v1+json"

// JSONMediaType requests the most recent version of the JSON
// representation of this content.
const JSONMediaType = "application/vnd.diffeo.workplanner+json"

// DataDict is an arbitrary user-provided data dictionary, carried
// opaquely from the submitter to the workers that eventually execute
// the slot.
type DataDict map[string]interface{}

// Resource is a base type for all resources in this module.
type Resource struct {
	// URL points at this resource.  This field does not need to
	// be provided when posting data.
	URL string `json:"url,omitempty"`
}

// RootData is returned by the root path.  Each field names one
// endpoint; ExecuteListURL and ReplayURL are URI templates.
type RootData struct {
	Resource

	// WorkplanListURL accepts HTTP POST of a filter document and
	// returns a WorkplanList.
	WorkplanListURL string `json:"workplan_list_url"`

	// WorkplanCountURL accepts HTTP POST of a filter document and
	// returns a WorkplanCount.
	WorkplanCountURL string `json:"workplan_count_url"`

	// WorkplanDeleteURL accepts HTTP POST of a filter document,
	// deletes every matching workplan, and returns an Affected.
	WorkplanDeleteURL string `json:"workplan_delete_url"`

	// WorkplanUpdateURL accepts HTTP POST of a single
	// UpdateRequest and returns the updated Workplan, or 404 if
	// the identified workplan does not exist.
	WorkplanUpdateURL string `json:"workplan_update_url"`

	// WorkplanBulkUpdateURL accepts HTTP POST of an UpdateList.
	// The whole batch applies or none of it does; the response is
	// an Affected with the number of workplans actually changed.
	WorkplanBulkUpdateURL string `json:"workplan_bulk_update_url"`

	// GenerateURL accepts HTTP POST of a GenerateRequest, runs
	// one full scheduling pass, and returns the schedule's
	// runnable set as a WorkplanList.
	GenerateURL string `json:"generate_url"`

	// ExecuteListURL returns the runnable set of one schedule as
	// a WorkplanList via HTTP GET.  This is a URI template with a
	// single parameter, "name", which should be substituted for
	// the (possibly escaped) schedule name.
	ExecuteListURL string `json:"execute_list_url"`

	// RecreateURL accepts HTTP POST of a RecreateRequest, deletes
	// the targeted past slots, and re-creates them with default
	// status, returning the new rows as a WorkplanList.
	RecreateURL string `json:"recreate_url"`

	// ReplayURL re-queues one workplan by id via HTTP POST with
	// no body, returning the updated Workplan, or 404 if no such
	// workplan exists.  This is a URI template with a single
	// parameter, "id".
	ReplayURL string `json:"replay_url"`
}

// Workplan is the wire representation of a single scheduled slot.
type Workplan struct {
	Resource

	// ID is the opaque unique identifier of the slot.  It is
	// assigned by the server and never needs to be provided when
	// posting data.
	ID string `json:"id,omitempty"`

	// Name is the schedule name.
	Name string `json:"name"`

	// Worktime is the logical target instant of the slot.
	Worktime time.Time `json:"worktime_utc"`

	// Status is the lifecycle status, one of "add", "queue",
	// "run", "success", "error", or "fatal_error".
	Status string `json:"status,omitempty"`

	// Hash is the job-definition fingerprint, if any.
	Hash string `json:"hash,omitempty"`

	// Retries counts attempts consumed so far.
	Retries int `json:"retries"`

	// Info is a failure diagnostic, if any.
	Info string `json:"info,omitempty"`

	// Data is the opaque payload echoed to workers.
	Data DataDict `json:"data,omitempty"`

	// Duration is the observed runtime in seconds, if recorded.
	Duration int `json:"duration,omitempty"`

	// Expires, Started, and Finished are absent when unset.
	Expires  *time.Time `json:"expires_utc,omitempty"`
	Started  *time.Time `json:"started_utc,omitempty"`
	Finished *time.Time `json:"finished_utc,omitempty"`

	// Created and Updated are server-maintained audit timestamps.
	Created *time.Time `json:"created_utc,omitempty"`
	Updated *time.Time `json:"updated_utc,omitempty"`
}

// WorkplanList is a list of workplans, in whatever order the
// producing endpoint defines.
type WorkplanList struct {
	Workplans []Workplan `json:"workplans"`
}

// WorkplanCount is the response to a count query.
type WorkplanCount struct {
	Count int `json:"count"`
}

// Affected is the response to a bulk mutation: how many workplans
// were actually deleted or changed.
type Affected struct {
	Count int `json:"count"`
}

// UpdateRequest is a partial-update document for a single workplan,
// identified by id if set, otherwise by the (name, worktime_utc)
// natural key.  Absent fields are left untouched; the clear flags set
// nullable fields back to null.
type UpdateRequest struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name,omitempty"`
	Worktime *time.Time `json:"worktime_utc,omitempty"`

	Status   *string    `json:"status,omitempty"`
	Hash     *string    `json:"hash,omitempty"`
	Retries  *int       `json:"retries,omitempty"`
	Info     *string    `json:"info,omitempty"`
	Duration *int       `json:"duration,omitempty"`
	Data     DataDict   `json:"data,omitempty"`
	Expires  *time.Time `json:"expires_utc,omitempty"`
	Started  *time.Time `json:"started_utc,omitempty"`
	Finished *time.Time `json:"finished_utc,omitempty"`

	ClearInfo     bool `json:"clear_info,omitempty"`
	ClearDuration bool `json:"clear_duration,omitempty"`
	ClearExpires  bool `json:"clear_expires,omitempty"`
}

// UpdateList is a batch of partial updates, applied atomically.
type UpdateList struct {
	Updates []UpdateRequest `json:"updates"`
}

// GenerateRequest asks the server to run one scheduling pass for a
// schedule.  In normal mode StartTime and Interval are required; with
// ParentName set the request instead derives child workplans from the
// parent schedule's slots in the StatusTrigger status.
type GenerateRequest struct {
	Name string `json:"name"`

	// StartTime anchors the interval grid.
	StartTime time.Time `json:"start_time,omitempty"`

	// Interval is the schedule period, in nanoseconds.
	Interval time.Duration `json:"interval,omitempty"`

	// KeepSequence backfills every missing grid slot instead of
	// creating only the next due one.
	KeepSequence bool `json:"keep_sequence,omitempty"`

	// MaxRetries and RetryDelay (nanoseconds) control the retry
	// drain.
	MaxRetries int           `json:"max_retries,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty"`

	// Hash and MaxFatalErrors control the fatal-error circuit
	// breaker.
	Hash           string `json:"hash,omitempty"`
	MaxFatalErrors int    `json:"max_fatal_errors,omitempty"`

	// BackRestarts replays trailing slots whenever a new one is
	// created.  It may be a positive integer n, meaning the n
	// slots before the new one, or a list of strictly negative
	// interval offsets.
	BackRestarts interface{} `json:"back_restarts,omitempty"`

	// Extra is the payload stamped on created workplans.
	Extra DataDict `json:"extra,omitempty"`

	// ParentName and StatusTrigger select child-generation mode.
	ParentName    string `json:"parent_name,omitempty"`
	StatusTrigger string `json:"status_trigger,omitempty"`
}

// RecreateRequest asks the server to delete past slots of a schedule
// and re-create them with default status.
type RecreateRequest struct {
	Name string `json:"name"`

	// OffsetPeriods may be a positive integer n (the n slots
	// before the anchor) or a list of strictly negative interval
	// offsets.
	OffsetPeriods interface{} `json:"offset_periods"`

	// Interval is the schedule period, in nanoseconds.
	Interval time.Duration `json:"interval"`

	// From overrides the anchor worktime the offsets count back
	// from.
	From *time.Time `json:"from,omitempty"`

	// Data is the payload stamped on the re-created workplans.
	Data DataDict `json:"data,omitempty"`
}

// ErrorResponse can be a response to any method, generally
// accompanied by a failing HTTP status code.
type ErrorResponse struct {
	// Error is a short description of the failure.  This may be
	// the name or type of a workplan API error, the string
	// "panic", or the string "error" for some other kind of
	// error.
	Error string `json:"error"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`

	// Value is an extra parameter to the error if applicable.
	Value string `json:"value,omitempty"`

	// Stack holds a formatted backtrace, if the method failed
	// due to a panic.
	Stack string `json:"stack,omitempty"`
}

// FromWorkplan builds the wire representation of a workplan.
func FromWorkplan(wp workplan.Workplan) Workplan {
	out := Workplan{
		Name:     wp.Name,
		Worktime: wp.Worktime,
		Hash:     wp.Hash,
		Retries:  wp.Retries,
		Info:     wp.Info,
		Data:     DataDict(wp.Data),
		Duration: wp.Duration,
		Expires:  maybeTime(wp.Expires),
		Started:  maybeTime(wp.Started),
		Finished: maybeTime(wp.Finished),
		Created:  maybeTime(wp.Created),
		Updated:  maybeTime(wp.Updated),
	}
	if !uuid.Equal(wp.ID, uuid.Nil) {
		out.ID = wp.ID.String()
	}
	out.Status = wp.Status.String()
	return out
}

// FromWorkplans builds the wire list envelope for a slice of
// workplans, preserving their order.
func FromWorkplans(wps []workplan.Workplan) WorkplanList {
	list := WorkplanList{Workplans: make([]Workplan, len(wps))}
	for i, wp := range wps {
		list.Workplans[i] = FromWorkplan(wp)
	}
	return list
}

// ToWorkplan converts the wire representation back into the domain
// object.  An unparseable id or status produces an ErrBadRequest.
func (w Workplan) ToWorkplan() (workplan.Workplan, error) {
	wp := workplan.Workplan{
		Name:     w.Name,
		Worktime: w.Worktime,
		Hash:     w.Hash,
		Retries:  w.Retries,
		Info:     w.Info,
		Data:     map[string]interface{}(w.Data),
		Duration: w.Duration,
		Expires:  timeOrZero(w.Expires),
		Started:  timeOrZero(w.Started),
		Finished: timeOrZero(w.Finished),
		Created:  timeOrZero(w.Created),
		Updated:  timeOrZero(w.Updated),
	}
	if w.ID != "" {
		id, err := uuid.FromString(w.ID)
		if err != nil {
			return wp, ErrBadRequest{Err: err}
		}
		wp.ID = id
	}
	if w.Status != "" {
		status, err := workplan.ParseStatus(w.Status)
		if err != nil {
			return wp, err
		}
		wp.Status = status
	}
	return wp, nil
}

// ToUpdate converts the wire update document into the domain one.
func (r UpdateRequest) ToUpdate() (workplan.Update, error) {
	u := workplan.Update{
		Name:          r.Name,
		Worktime:      timeOrZero(r.Worktime),
		Hash:          r.Hash,
		Retries:       r.Retries,
		Info:          r.Info,
		Duration:      r.Duration,
		Data:          map[string]interface{}(r.Data),
		Expires:       r.Expires,
		Started:       r.Started,
		Finished:      r.Finished,
		ClearInfo:     r.ClearInfo,
		ClearDuration: r.ClearDuration,
		ClearExpires:  r.ClearExpires,
	}
	if r.ID != "" {
		id, err := uuid.FromString(r.ID)
		if err != nil {
			return u, ErrBadRequest{Err: err}
		}
		u.ID = id
	}
	if r.Status != nil {
		status, err := workplan.ParseStatus(*r.Status)
		if err != nil {
			return u, err
		}
		u.Status = &status
	}
	return u, nil
}

// ToPlanner converts the wire generate request into the engine one.
func (r GenerateRequest) ToPlanner() (planner.GenerateRequest, error) {
	req := planner.GenerateRequest{
		Name:           r.Name,
		StartTime:      r.StartTime,
		Interval:       r.Interval,
		KeepSequence:   r.KeepSequence,
		MaxRetries:     r.MaxRetries,
		RetryDelay:     r.RetryDelay,
		Hash:           r.Hash,
		MaxFatalErrors: r.MaxFatalErrors,
		Extra:          map[string]interface{}(r.Extra),
		ParentName:     r.ParentName,
	}
	if r.BackRestarts != nil {
		periods, err := OffsetPeriodsValue(r.BackRestarts)
		if err != nil {
			return req, err
		}
		req.BackRestarts = periods
	}
	if r.StatusTrigger != "" {
		trigger, err := workplan.ParseStatus(r.StatusTrigger)
		if err != nil {
			return req, err
		}
		req.StatusTrigger = trigger
	}
	return req, nil
}

// OffsetPeriodsValue interprets a decoded offset-period
// specification.  A positive integer n expands to the offsets -1
// through -n; a list must hold strictly negative integers.  Anything
// else is ErrBadOffsetPeriods.
func OffsetPeriodsValue(value interface{}) (workplan.OffsetPeriods, error) {
	if n, ok := asInt(value); ok {
		return workplan.PeriodsBack(n)
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, workplan.ErrBadOffsetPeriods
	}
	periods := make(workplan.OffsetPeriods, len(list))
	for i, item := range list {
		n, ok := asInt(item)
		if !ok {
			return nil, workplan.ErrBadOffsetPeriods
		}
		periods[i] = n
	}
	if err := periods.Validate(); err != nil {
		return nil, err
	}
	return periods, nil
}

// asInt widens the various numeric types a JSON decoder can hand back
// into a plain int.
func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func maybeTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
