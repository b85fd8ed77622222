// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRoundTrip(t *testing.T) {
	for _, status := range []Status{
		StatusAdd, StatusQueue, StatusRun,
		StatusSuccess, StatusError, StatusFatalError,
	} {
		text, err := status.MarshalText()
		if !assert.NoError(t, err, status) {
			continue
		}
		var back Status
		if assert.NoError(t, back.UnmarshalText(text), status) {
			assert.Equal(t, status, back)
		}
	}
}

func TestStatusDefault(t *testing.T) {
	var status Status
	assert.Equal(t, StatusAdd, status)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusAdd.Terminal())
	assert.False(t, StatusQueue.Terminal())
	assert.False(t, StatusRun.Terminal())
	assert.False(t, StatusError.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFatalError.Terminal())
}

func TestParseStatusUnknown(t *testing.T) {
	_, err := ParseStatus("cancelled")
	assert.Equal(t, ErrNoSuchStatus{Status: "cancelled"}, err)
}

func TestStatusMarshalInvalid(t *testing.T) {
	_, err := Status(99).MarshalText()
	assert.Error(t, err)
}
