// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package correlator

import (
	"errors"
	"fmt"
	"time"
)

var ErrClosed = errors.New("correlator is closed")

type RequestTimedOutError struct {
	ID         string
	EndpointID string
	Method     string
	Timeout    time.Duration
}

func (e *RequestTimedOutError) Error() string {
	return fmt.Sprintf("request %s (%q) to %q timed out after %s",
		e.ID, e.Method, e.EndpointID, e.Timeout)
}

func IsRequestTimedOut(err error) bool {
	var rto *RequestTimedOutError
	return errors.As(err, &rto)
}

type EndpointDisconnectedError struct {
	ID         string
	EndpointID string
	Method     string
}

func (e *EndpointDisconnectedError) Error() string {
	return fmt.Sprintf("endpoint %q disconnected before responding to %s (%q)",
		e.EndpointID, e.ID, e.Method)
}

func IsEndpointDisconnected(err error) bool {
	var ede *EndpointDisconnectedError
	return errors.As(err, &ede)
}
