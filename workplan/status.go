// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package workplan

import "fmt"

// Status describes where a workplan is in its lifecycle.
type Status int

const (
	// StatusAdd is the default status: the slot is ready for
	// execution.
	StatusAdd Status = iota

	// StatusQueue means a worker pool has claimed the slot.
	StatusQueue

	// StatusRun means the slot is executing.
	StatusRun

	// StatusSuccess is terminal: the slot completed.
	StatusSuccess

	// StatusError is a retryable failure; the retry drain can move
	// the slot back to StatusAdd while budget remains.
	StatusError

	// StatusFatalError is terminal for the current job definition;
	// enough of these trip the circuit breaker.
	StatusFatalError
)

// ErrorStatuses are the retryable failure statuses considered by the
// retry drain.
var ErrorStatuses = []Status{StatusError}

// RunStatuses are the in-flight statuses; slots in these states at
// service start are candidates for "lost" reclamation.
var RunStatuses = []Status{StatusQueue, StatusRun}

// TerminalStatuses are never touched by the expiry sweep.
var TerminalStatuses = []Status{StatusSuccess, StatusFatalError}

// Terminal reports whether the status is terminal.
func (status Status) Terminal() bool {
	return status == StatusSuccess || status == StatusFatalError
}

func (status Status) String() string {
	text, err := status.MarshalText()
	if err != nil {
		return fmt.Sprintf("Status(%d)", int(status))
	}
	return string(text)
}

// MarshalText returns the wire representation of a status.
func (status Status) MarshalText() ([]byte, error) {
	switch status {
	case StatusAdd:
		return []byte("add"), nil
	case StatusQueue:
		return []byte("queue"), nil
	case StatusRun:
		return []byte("run"), nil
	case StatusSuccess:
		return []byte("success"), nil
	case StatusError:
		return []byte("error"), nil
	case StatusFatalError:
		return []byte("fatal_error"), nil
	default:
		return nil, fmt.Errorf("invalid status (marshal, %+v)", int(status))
	}
}

// UnmarshalText populates a status from its wire representation.
func (status *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*status = parsed
	return nil
}

// ParseStatus converts a wire representation into a Status.  Unknown
// strings produce ErrNoSuchStatus.
func ParseStatus(text string) (Status, error) {
	switch text {
	case "add":
		return StatusAdd, nil
	case "queue":
		return StatusQueue, nil
	case "run":
		return StatusRun, nil
	case "success":
		return StatusSuccess, nil
	case "error":
		return StatusError, nil
	case "fatal_error":
		return StatusFatalError, nil
	default:
		return StatusAdd, ErrNoSuchStatus{Status: text}
	}
}
