// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"errors"
	"net/http"

	"github.com/diffeo/go-workplanner/restdata"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/gorilla/mux"
	"github.com/satori/go.uuid"
)

// errUnmarshal is returned if the post contract is violated and
// a handler function is passed the wrong type.
var errUnmarshal = restdata.ErrBadRequest{
	Err: errors.New("Invalid input format"),
}

// errNoSuchWorkplan backs the 404 responses of the single-workplan
// endpoints.
var errNoSuchWorkplan = errors.New("no such workplan")

// context holds all of the information that can be extracted from URL
// parameters.
type context struct {
	// Name is the decoded schedule name, if the route has a
	// {name} parameter.
	Name string

	// ID is the workplan id, if the route has an {id} parameter.
	ID uuid.UUID
}

func (api *restAPI) Context(req *http.Request) (*context, error) {
	ctx := &context{}
	vars := mux.Vars(req)

	if name, present := vars["name"]; present {
		decoded, err := restdata.MaybeDecodeName(name)
		if err != nil {
			return nil, restdata.ErrBadRequest{Err: err}
		}
		if decoded == "" {
			return nil, workplan.ErrNoName
		}
		ctx.Name = decoded
	}

	if id, present := vars["id"]; present {
		parsed, err := uuid.FromString(id)
		if err != nil {
			return nil, restdata.ErrBadRequest{Err: err}
		}
		ctx.ID = parsed
	}

	return ctx, nil
}
