// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package transmission is the outbound counterpart of reception.
// It builds calls addressed to one or all remote endpoints.
//
//	t := transmission.NewTransmitter(correlator, endpoints, 10*time.Second)
//	p, err := transmission.SendAndReceiveOne[int](ctx,
//		t.NewCall("rpc/ping").EndpointID(id).Params(5))
//	n, err := p.Wait(ctx)
package transmission

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/eclipse-che/che-jsonrpc/internal/correlator"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

// Broadcast addresses every connected endpoint
const Broadcast = "*"

type Requester interface {
	Send(ctx context.Context, endpointID, method string, params interface{},
		result methods.Shape, timeout time.Duration) (*correlator.Handle, error)
	Notify(ctx context.Context, endpointID, method string, params interface{}) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, method string, params interface{}) error
}

type Transmitter struct {
	requester      Requester
	broadcaster    Broadcaster
	defaultTimeout time.Duration
	logger         *log.Logger
}

func NewTransmitter(r Requester, b Broadcaster, defaultTimeout time.Duration) *Transmitter {
	return &Transmitter{
		requester:      r,
		broadcaster:    b,
		defaultTimeout: defaultTimeout,
		logger:         log.New(io.Discard, "", 0),
	}
}

func (t *Transmitter) SetLogger(logger *log.Logger) {
	t.logger = logger
}

// NewCall starts building a call of the given method
func (t *Transmitter) NewCall(method string) *Call {
	return &Call{
		t:       t,
		method:  method,
		timeout: t.defaultTimeout,
	}
}

// Transmit sends a notification to a single endpoint,
// or to all of them when endpointID is Broadcast.
func (t *Transmitter) Transmit(ctx context.Context, endpointID, method string, params interface{}) error {
	if method == "" {
		return &InvalidCallError{Reason: "method name must not be empty"}
	}
	if endpointID == "" {
		return &InvalidCallError{Method: method, Reason: "no endpoint given"}
	}

	if endpointID == Broadcast {
		t.logger.Printf("broadcasting %q", method)
		return t.broadcaster.Broadcast(ctx, method, params)
	}
	t.logger.Printf("notifying %q about %q", endpointID, method)
	return t.requester.Notify(ctx, endpointID, method, params)
}
