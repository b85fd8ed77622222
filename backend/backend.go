// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package backend provides a standard way to construct a workplan
// store based on command-line flags.
package backend

import (
	"errors"
	"strings"

	"github.com/diffeo/go-workplanner/memory"
	"github.com/diffeo/go-workplanner/postgres"
	"github.com/diffeo/go-workplanner/workplan"
)

// Backend describes user-visible parameters to store workplan data.
// This implements the flag.Value interface, and so a typical use is
//
//	func main() {
//	    backend := backend.Backend{Implementation: "memory"}
//	    flag.Var(&backend, "backend", "impl:address of workplan storage")
//	    flag.Parse()
//	    store, err := backend.Store()
//	}
type Backend struct {
	// Implementation holds the name of the implementation; for
	// instance, "memory" or "postgres".
	Implementation string

	// Address holds some backend-specific address, such as a
	// database connect string.
	Address string
}

// Store creates a new workplan store.  This generally should be only
// called once.  If the backend has in-process state, such as a
// database connection pool or an in-memory table, calling this
// multiple times will create multiple copies of that state.  In
// particular, if b.Implementation is "memory", multiple calls to this
// will create multiple independent workplan "worlds".
func (b *Backend) Store() (workplan.Store, error) {
	switch b.Implementation {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.New(b.Address)
	default:
		return nil, errors.New("unknown workplan backend " + b.Implementation)
	}
}

// String renders a backend description as a string.
func (b *Backend) String() string {
	if b.Address == "" {
		return b.Implementation
	}
	return b.Implementation + ":" + b.Address
}

// Set parses a string into an existing backend description.  The
// string should be of the form "implementation:address", where
// address can be any string.  Set checks to see if the provided
// implementation is any of the known implementations, and returns an
// appropriate error if not.
//
// This is part of the flag.Value interface.  Note that this does not
// attempt to validate the b.Address part of the string or attempt to
// actually make a connection.
func (b *Backend) Set(param string) error {
	parts := strings.SplitN(param, ":", 2)
	impl := parts[0]
	switch impl {
	case "memory", "postgres":
	default:
		return errors.New("unknown workplan backend " + impl)
	}
	b.Implementation = impl
	if len(parts) == 2 {
		b.Address = parts[1]
	} else {
		b.Address = ""
	}
	return nil
}
