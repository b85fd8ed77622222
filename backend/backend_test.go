// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	var b Backend

	require.NoError(t, b.Set("memory"))
	assert.Equal(t, Backend{Implementation: "memory"}, b)
	assert.Equal(t, "memory", b.String())

	require.NoError(t, b.Set("postgres:host=localhost dbname=workplanner"))
	assert.Equal(t, "postgres", b.Implementation)
	assert.Equal(t, "host=localhost dbname=workplanner", b.Address)
	assert.Equal(t, "postgres:host=localhost dbname=workplanner", b.String())

	assert.Error(t, b.Set("etcd:localhost:2379"))
}

func TestMemoryStore(t *testing.T) {
	b := Backend{Implementation: "memory"}
	store, err := b.Store()
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestUnknownStore(t *testing.T) {
	b := Backend{Implementation: "etcd"}
	_, err := b.Store()
	assert.Error(t, err)
}
