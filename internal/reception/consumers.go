// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package reception

import (
	"context"
	"encoding/json"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

// ConsumerOneToNone handles notifications carrying a single params object.
// As it is a consumer, there is no result.
type ConsumerOneToNone[P any] struct {
	m Method
}

func OneToNone[P any](m Method) *ConsumerOneToNone[P] {
	return &ConsumerOneToNone[P]{m: m}
}

func (c *ConsumerOneToNone[P]) WithConsumer(fn func(ctx context.Context, endpointID string, params P) error) error {
	method := c.m.name
	return c.m.register(methods.SingleOf[P](), methods.NoneShape(), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			p, err := decodeOne[P](method, raw)
			if err != nil {
				return nil, err
			}
			return nil, fn(ctx, endpointID, p)
		})
}

func (c *ConsumerOneToNone[P]) WithParamsConsumer(fn func(ctx context.Context, params P) error) error {
	if fn == nil {
		return c.WithConsumer(nil)
	}
	return c.WithConsumer(func(ctx context.Context, _ string, params P) error {
		return fn(ctx, params)
	})
}

// ConsumerManyToNone handles notifications carrying an array of params.
type ConsumerManyToNone[P any] struct {
	m Method
}

func ManyToNone[P any](m Method) *ConsumerManyToNone[P] {
	return &ConsumerManyToNone[P]{m: m}
}

func (c *ConsumerManyToNone[P]) WithConsumer(fn func(ctx context.Context, endpointID string, params []P) error) error {
	method := c.m.name
	return c.m.register(methods.ArrayOf[P](), methods.NoneShape(), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			ps, err := decodeMany[P](method, raw)
			if err != nil {
				return nil, err
			}
			return nil, fn(ctx, endpointID, ps)
		})
}

func (c *ConsumerManyToNone[P]) WithParamsConsumer(fn func(ctx context.Context, params []P) error) error {
	if fn == nil {
		return c.WithConsumer(nil)
	}
	return c.WithConsumer(func(ctx context.Context, _ string, params []P) error {
		return fn(ctx, params)
	})
}

// ConsumerNoneToNone handles notifications without params.
type ConsumerNoneToNone struct {
	m Method
}

func NoneToNone(m Method) *ConsumerNoneToNone {
	return &ConsumerNoneToNone{m: m}
}

func (c *ConsumerNoneToNone) WithConsumer(fn func(ctx context.Context, endpointID string) error) error {
	return c.m.register(methods.NoneShape(), methods.NoneShape(), fn == nil,
		func(ctx context.Context, endpointID string, _ json.RawMessage) (json.RawMessage, error) {
			return nil, fn(ctx, endpointID)
		})
}
