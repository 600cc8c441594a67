// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
)

type contextKey struct {
	Name string
}

func (k *contextKey) String() string {
	return k.Name
}

var (
	ctxEndpointID    = &contextKey{"endpoint ID"}
	ctxRequestID     = &contextKey{"request ID"}
	ctxMethod        = &contextKey{"method"}
	ctxServerVersion = &contextKey{"server version"}
)

func missingContextErr(ctxKey *contextKey) *MissingContextErr {
	return &MissingContextErr{ctxKey}
}

// WithEndpointID stores the ID of the endpoint a message came from
func WithEndpointID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxEndpointID, id)
}

func EndpointID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxEndpointID).(string)
	if !ok {
		return "", missingContextErr(ctxEndpointID)
	}
	return id, nil
}

// WithRequestID stores the wire ID of the request being handled.
// Notifications carry no ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxRequestID).(string)
	return id, ok
}

func WithMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, ctxMethod, method)
}

func Method(ctx context.Context) (string, bool) {
	m, ok := ctx.Value(ctxMethod).(string)
	return m, ok
}

func WithServerVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxServerVersion, version)
}

func ServerVersion(ctx context.Context) (string, bool) {
	version, ok := ctx.Value(ctxServerVersion).(string)
	if !ok {
		return "", false
	}
	return version, true
}
