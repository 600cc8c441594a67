// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package reception

import (
	"context"
	"encoding/json"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

type FunctionOneToOne[P, R any] struct {
	m Method
}

func OneToOne[P, R any](m Method) *FunctionOneToOne[P, R] {
	return &FunctionOneToOne[P, R]{m: m}
}

func (f *FunctionOneToOne[P, R]) WithFunction(fn func(ctx context.Context, endpointID string, params P) (R, error)) error {
	method := f.m.name
	return f.m.register(methods.SingleOf[P](), methods.SingleOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			p, err := decodeOne[P](method, raw)
			if err != nil {
				return nil, err
			}
			r, err := fn(ctx, endpointID, p)
			if err != nil {
				return nil, err
			}
			return encodeOne(r)
		})
}

func (f *FunctionOneToOne[P, R]) WithParamsFunction(fn func(ctx context.Context, params P) (R, error)) error {
	if fn == nil {
		return f.WithFunction(nil)
	}
	return f.WithFunction(func(ctx context.Context, _ string, params P) (R, error) {
		return fn(ctx, params)
	})
}

// FunctionOneToMany responds with an array of results,
// serialized as a JSON array.
type FunctionOneToMany[P, R any] struct {
	m Method
}

func OneToMany[P, R any](m Method) *FunctionOneToMany[P, R] {
	return &FunctionOneToMany[P, R]{m: m}
}

func (f *FunctionOneToMany[P, R]) WithFunction(fn func(ctx context.Context, endpointID string, params P) ([]R, error)) error {
	method := f.m.name
	return f.m.register(methods.SingleOf[P](), methods.ArrayOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			p, err := decodeOne[P](method, raw)
			if err != nil {
				return nil, err
			}
			rs, err := fn(ctx, endpointID, p)
			if err != nil {
				return nil, err
			}
			return encodeMany(rs)
		})
}

func (f *FunctionOneToMany[P, R]) WithParamsFunction(fn func(ctx context.Context, params P) ([]R, error)) error {
	if fn == nil {
		return f.WithFunction(nil)
	}
	return f.WithFunction(func(ctx context.Context, _ string, params P) ([]R, error) {
		return fn(ctx, params)
	})
}

type FunctionManyToOne[P, R any] struct {
	m Method
}

func ManyToOne[P, R any](m Method) *FunctionManyToOne[P, R] {
	return &FunctionManyToOne[P, R]{m: m}
}

func (f *FunctionManyToOne[P, R]) WithFunction(fn func(ctx context.Context, endpointID string, params []P) (R, error)) error {
	method := f.m.name
	return f.m.register(methods.ArrayOf[P](), methods.SingleOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			ps, err := decodeMany[P](method, raw)
			if err != nil {
				return nil, err
			}
			r, err := fn(ctx, endpointID, ps)
			if err != nil {
				return nil, err
			}
			return encodeOne(r)
		})
}

type FunctionManyToMany[P, R any] struct {
	m Method
}

func ManyToMany[P, R any](m Method) *FunctionManyToMany[P, R] {
	return &FunctionManyToMany[P, R]{m: m}
}

func (f *FunctionManyToMany[P, R]) WithFunction(fn func(ctx context.Context, endpointID string, params []P) ([]R, error)) error {
	method := f.m.name
	return f.m.register(methods.ArrayOf[P](), methods.ArrayOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, raw json.RawMessage) (json.RawMessage, error) {
			ps, err := decodeMany[P](method, raw)
			if err != nil {
				return nil, err
			}
			rs, err := fn(ctx, endpointID, ps)
			if err != nil {
				return nil, err
			}
			return encodeMany(rs)
		})
}

// FunctionNoneToOne handles calls without params.
type FunctionNoneToOne[R any] struct {
	m Method
}

func NoneToOne[R any](m Method) *FunctionNoneToOne[R] {
	return &FunctionNoneToOne[R]{m: m}
}

func (f *FunctionNoneToOne[R]) WithFunction(fn func(ctx context.Context, endpointID string) (R, error)) error {
	return f.m.register(methods.NoneShape(), methods.SingleOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, _ json.RawMessage) (json.RawMessage, error) {
			r, err := fn(ctx, endpointID)
			if err != nil {
				return nil, err
			}
			return encodeOne(r)
		})
}

type FunctionNoneToMany[R any] struct {
	m Method
}

func NoneToMany[R any](m Method) *FunctionNoneToMany[R] {
	return &FunctionNoneToMany[R]{m: m}
}

func (f *FunctionNoneToMany[R]) WithFunction(fn func(ctx context.Context, endpointID string) ([]R, error)) error {
	return f.m.register(methods.NoneShape(), methods.ArrayOf[R](), fn == nil,
		func(ctx context.Context, endpointID string, _ json.RawMessage) (json.RawMessage, error) {
			rs, err := fn(ctx, endpointID)
			if err != nil {
				return nil, err
			}
			return encodeMany(rs)
		})
}
