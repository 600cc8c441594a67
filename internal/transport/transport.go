// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package transport moves opaque JSON-RPC messages between this
// process and its remote endpoints.
package transport

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockery --name Sender --structname Sender --filename sender.go --outpkg mock --output ./mock

// Sender transmits a single serialized envelope to a connected endpoint.
type Sender interface {
	Send(ctx context.Context, endpointID string, msg []byte) error
}

// Receiver is notified about endpoint lifecycle and every inbound
// message. Messages of a single endpoint are delivered sequentially.
type Receiver interface {
	OnConnect(endpointID, remoteAddr string)
	OnMessage(endpointID string, msg []byte)
	OnDisconnect(endpointID string)
}

type UnknownEndpointError struct {
	EndpointID string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("endpoint %q is not connected", e.EndpointID)
}

func IsUnknownEndpoint(err error) bool {
	var uee *UnknownEndpointError
	return errors.As(err, &uee)
}
