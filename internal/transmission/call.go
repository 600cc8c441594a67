// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transmission

import (
	"context"
	"time"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

// Call is a single outbound call under construction.
// A Call is not safe for concurrent use.
type Call struct {
	t *Transmitter

	method     string
	endpointID string
	params     interface{}
	timeout    time.Duration
}

func (c *Call) EndpointID(id string) *Call {
	c.endpointID = id
	return c
}

// Broadcast addresses the call to all connected endpoints.
// Only calls sent without awaiting a result can be broadcast.
func (c *Call) Broadcast() *Call {
	c.endpointID = Broadcast
	return c
}

// Params sets the params of the call. A slice is sent as
// a JSON array, any other value as a single JSON value.
func (c *Call) Params(params interface{}) *Call {
	c.params = params
	return c
}

// Timeout overrides the default timeout of the transmitter.
// Zero times out immediately, correlator.NoTimeout disables it.
func (c *Call) Timeout(d time.Duration) *Call {
	c.timeout = d
	return c
}

// SendAndSkipResult sends the call as a notification
func (c *Call) SendAndSkipResult(ctx context.Context) error {
	return c.t.Transmit(ctx, c.endpointID, c.method, c.params)
}

// SendAndReceiveNone sends a request whose result carries no
// value, the returned promise only reports completion.
func (c *Call) SendAndReceiveNone(ctx context.Context) (*Promise[struct{}], error) {
	return send(ctx, c, methods.NoneShape(), decodeNone)
}

// SendAndReceiveOne sends a request expecting a single value
func SendAndReceiveOne[R any](ctx context.Context, c *Call) (*Promise[R], error) {
	shape := methods.SingleOf[R]()
	return send(ctx, c, shape, decodeOne[R](c.method, shape))
}

// SendAndReceiveMany sends a request expecting an array of values
func SendAndReceiveMany[R any](ctx context.Context, c *Call) (*Promise[[]R], error) {
	shape := methods.ArrayOf[R]()
	return send(ctx, c, shape, decodeMany[R](c.method, shape))
}

func send[T any](ctx context.Context, c *Call, result methods.Shape, decode decodeFunc[T]) (*Promise[T], error) {
	err := c.validateRequest()
	if err != nil {
		return nil, err
	}

	h, err := c.t.requester.Send(ctx, c.endpointID, c.method, c.params, result, c.timeout)
	if err != nil {
		return nil, err
	}
	c.t.logger.Printf("request %s (%q) expecting %s sent to %q", h.ID, c.method, result, c.endpointID)

	return &Promise[T]{
		handle: h,
		decode: decode,
	}, nil
}

func (c *Call) validateRequest() error {
	if c.method == "" {
		return &InvalidCallError{Reason: "method name must not be empty"}
	}
	if c.endpointID == "" {
		return &InvalidCallError{Method: c.method, Reason: "no endpoint given"}
	}
	if c.endpointID == Broadcast {
		return &InvalidCallError{Method: c.method,
			Reason: "a broadcast cannot await a result, use SendAndSkipResult"}
	}
	return nil
}
