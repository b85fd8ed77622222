// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"net/http"

	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/restdata"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/gorilla/mux"
)

// NewRouter creates a new HTTP handler that processes all workplanner
// requests against a store.  All resources are under the URL path
// root, e.g. /workplans/list.  For more control over this setup,
// create a mux.Router and call PopulateRouter instead.
func NewRouter(p *planner.Planner, store workplan.Store) http.Handler {
	r := mux.NewRouter()
	PopulateRouter(r, p, store)
	return r
}

// PopulateRouter adds workplanner routes to an existing
// github.com/gorilla/mux router object.  This can be used, for
// instance, to place the API under a subpath:
//
//	import "github.com/diffeo/go-workplanner/memory"
//	import "github.com/diffeo/go-workplanner/planner"
//	import "github.com/gorilla/mux"
//	r := mux.NewRouter()
//	s := r.PathPrefix("/workplanner").Subrouter()
//	store := memory.New()
//	PopulateRouter(s, planner.New(store), store)
func PopulateRouter(r *mux.Router, p *planner.Planner, store workplan.Store) {
	api := &restAPI{Planner: p, Store: store, Router: r}
	api.PopulateRouter(r)
}

// restAPI holds the persistent state for the workplanner REST API.
type restAPI struct {
	Planner *planner.Planner
	Store   workplan.Store
	Router  *mux.Router
}

// PopulateRouter adds all workplanner URL paths to a router.
func (api *restAPI) PopulateRouter(r *mux.Router) {
	r.Path("/workplans/list").Name("workplanList").Handler(&resourceHandler{
		Representation: workplan.Filter{},
		Context:        api.Context,
		Post:           api.WorkplanList,
	})
	r.Path("/workplans/count").Name("workplanCount").Handler(&resourceHandler{
		Representation: workplan.Filter{},
		Context:        api.Context,
		Post:           api.WorkplanCount,
	})
	r.Path("/workplans/delete").Name("workplanDelete").Handler(&resourceHandler{
		Representation: workplan.Filter{},
		Context:        api.Context,
		Post:           api.WorkplanDelete,
	})
	r.Path("/workplans/update").Name("workplanUpdate").Handler(&resourceHandler{
		Representation: restdata.UpdateRequest{},
		Context:        api.Context,
		Post:           api.WorkplanUpdate,
	})
	r.Path("/workplans/update/list").Name("workplanBulkUpdate").Handler(&resourceHandler{
		Representation: restdata.UpdateList{},
		Context:        api.Context,
		Post:           api.WorkplanBulkUpdate,
	})
	r.Path("/workplans/generate").Name("generate").Handler(&resourceHandler{
		Representation: restdata.GenerateRequest{},
		Context:        api.Context,
		Post:           api.Generate,
	})
	r.Path("/workplans/execute/{name}/list").Name("executeList").Handler(&resourceHandler{
		Representation: restdata.WorkplanList{},
		Context:        api.Context,
		Get:            api.ExecuteList,
	})
	r.Path("/workplans/recreate").Name("recreate").Handler(&resourceHandler{
		Representation: restdata.RecreateRequest{},
		Context:        api.Context,
		Post:           api.Recreate,
	})
	r.Path("/workplans/{id}/replay").Name("replay").Handler(&resourceHandler{
		Representation: restdata.Workplan{},
		Context:        api.Context,
		Post:           api.Replay,
	})
	r.Path("/").Name("root").Handler(&resourceHandler{
		Representation: restdata.RootData{},
		Context:        api.Context,
		Get:            api.RootDocument,
	})
}

func (api *restAPI) RootDocument(ctx *context) (interface{}, error) {
	resp := restdata.RootData{}
	err := buildURLs(api.Router).
		URL(&resp.WorkplanListURL, "workplanList").
		URL(&resp.WorkplanCountURL, "workplanCount").
		URL(&resp.WorkplanDeleteURL, "workplanDelete").
		URL(&resp.WorkplanUpdateURL, "workplanUpdate").
		URL(&resp.WorkplanBulkUpdateURL, "workplanBulkUpdate").
		URL(&resp.GenerateURL, "generate").
		Template(&resp.ExecuteListURL, "executeList", "name").
		URL(&resp.RecreateURL, "recreate").
		Template(&resp.ReplayURL, "replay", "id").
		Error
	return resp, err
}
