// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/diffeo/go-workplanner/workplan"
)

// ErrorStatus describes errors that correspond to specific HTTP status
// codes.
type ErrorStatus interface {
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrUnsupportedMediaType is returned from Decode() if the provided
// Content-Type: is unrecognized.  This translates directly into the
// equivalent HTTP 415 error.
type ErrUnsupportedMediaType struct {
	Type string
}

func (e ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("Unsupported media type %q", e.Type)
}

// HTTPStatus returns a fixed 415 Unsupported Media Type error code.
func (e ErrUnsupportedMediaType) HTTPStatus() int {
	return http.StatusUnsupportedMediaType
}

// ErrNotFound is a wrapper error that indicates that, due to the
// embedded error, a REST service should return a 404 Not Found error.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns a fixed 404 Not Found error code.
func (e ErrNotFound) HTTPStatus() int {
	return http.StatusNotFound
}

// ErrBadRequest is returned as an error when there is an error decoding
// HTTP headers or the request body.
type ErrBadRequest struct {
	Err error
}

func (e ErrBadRequest) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns a fixed 400 Bad Request HTTP status code.
func (e ErrBadRequest) HTTPStatus() int {
	return http.StatusBadRequest
}

// HTTPStatusFor picks the status code an error should be returned
// with: the error's own, if it carries one; 409 Conflict for an
// identity collision; 400 Bad Request for the workplan package's
// validation errors; 500 otherwise.
func HTTPStatusFor(err error) int {
	if errS, hasStatus := err.(ErrorStatus); hasStatus {
		return errS.HTTPStatus()
	}
	switch err {
	case workplan.ErrWorkplanExists:
		return http.StatusConflict
	case workplan.ErrNoName, workplan.ErrNameTooLong,
		workplan.ErrNoIdentity, workplan.ErrNoStartTime,
		workplan.ErrBadOffsetPeriods:
		return http.StatusBadRequest
	}
	switch err.(type) {
	case workplan.ErrNoSuchStatus, workplan.ErrBadField, workplan.ErrBadOperator:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// FromError populates an ErrorResponse to fill in its fields based
// on an error value.  This remaps the well-known workplan errors
// to specific e.Error codes.
func (e *ErrorResponse) FromError(err error) {
	switch err {
	case workplan.ErrWorkplanExists:
		e.Error = "ErrWorkplanExists"
	case workplan.ErrNoName:
		e.Error = "ErrNoName"
	case workplan.ErrNameTooLong:
		e.Error = "ErrNameTooLong"
	case workplan.ErrNoIdentity:
		e.Error = "ErrNoIdentity"
	case workplan.ErrNoStartTime:
		e.Error = "ErrNoStartTime"
	case workplan.ErrBadOffsetPeriods:
		e.Error = "ErrBadOffsetPeriods"
	case workplan.ErrStopIteration:
		e.Error = "ErrStopIteration"
	}
	switch et := err.(type) {
	case workplan.ErrNoSuchStatus:
		e.Error = "ErrNoSuchStatus"
		e.Value = et.Status
	case workplan.ErrBadField:
		e.Error = "ErrBadField"
		e.Value = et.Field
	case workplan.ErrBadOperator:
		e.Error = "ErrBadOperator"
		e.Value = et.Operator
	case ErrNotFound:
		// Discard this wrapper and return the embedded error
		e.FromError(et.Err)
	case ErrBadRequest:
		e.FromError(et.Err)
	}
}

// ToError converts e back to a workplan error, if that is possible.
// If not, returns a plain error with e.Message text.
func (e *ErrorResponse) ToError() error {
	switch e.Error {
	case "ErrWorkplanExists":
		return workplan.ErrWorkplanExists
	case "ErrNoName":
		return workplan.ErrNoName
	case "ErrNameTooLong":
		return workplan.ErrNameTooLong
	case "ErrNoIdentity":
		return workplan.ErrNoIdentity
	case "ErrNoStartTime":
		return workplan.ErrNoStartTime
	case "ErrBadOffsetPeriods":
		return workplan.ErrBadOffsetPeriods
	case "ErrStopIteration":
		return workplan.ErrStopIteration
	case "ErrNoSuchStatus":
		return workplan.ErrNoSuchStatus{Status: e.Value}
	case "ErrBadField":
		return workplan.ErrBadField{Field: e.Value}
	case "ErrBadOperator":
		// The field and reason do not survive the round trip;
		// the operator is enough for callers to branch on.
		return workplan.ErrBadOperator{Operator: e.Value}
	default:
		return errors.New(e.Message)
	}
}

// FromPanic populates an error response based on a panic.  Typical use
// is:
//
//	defer func() {
//	    if obj := recovered(); obj != nil {
//	        resp := restdata.ErrorResponse{}
//	        resp.FromPanic(obj)
//	        // write resp out as makes sense
//	    }
//	}
func (e *ErrorResponse) FromPanic(obj interface{}) {
	e.Error = "panic"
	if recoveredError, isError := obj.(error); isError {
		e.Message = recoveredError.Error()
	} else {
		e.Message = fmt.Sprintf("%+v", obj)
	}
	var stack [4096]byte
	len := runtime.Stack(stack[:], false)
	e.Stack = string(stack[:len])
}
