// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transmission

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/eclipse-che/che-jsonrpc/internal/correlator"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
)

type decodeFunc[T any] func(raw json.RawMessage) (T, error)

// Promise is the pending outcome of an outbound request
type Promise[T any] struct {
	handle *correlator.Handle
	decode decodeFunc[T]
}

// ID returns the correlation ID of the underlying request
func (p *Promise[T]) ID() string {
	return p.handle.ID
}

func (p *Promise[T]) Done() <-chan struct{} {
	return p.handle.Done()
}

// Wait blocks until the response arrives, the request fails
// or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	raw, err := p.handle.Wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return p.decode(raw)
}

func decodeNone(raw json.RawMessage) (struct{}, error) {
	return struct{}{}, nil
}

func decodeOne[R any](method string, shape methods.Shape) decodeFunc[R] {
	return func(raw json.RawMessage) (R, error) {
		var r R
		if isNull(raw) {
			return r, nil
		}
		err := json.Unmarshal(raw, &r)
		if err != nil {
			return r, &UnexpectedResultError{Method: method, Expected: shape, Err: err}
		}
		return r, nil
	}
}

func decodeMany[R any](method string, shape methods.Shape) decodeFunc[[]R] {
	return func(raw json.RawMessage) ([]R, error) {
		if isNull(raw) {
			return []R{}, nil
		}
		if bytes.TrimSpace(raw)[0] != '[' {
			return nil, &UnexpectedResultError{Method: method, Expected: shape}
		}
		rs := make([]R, 0)
		err := json.Unmarshal(raw, &rs)
		if err != nil {
			return nil, &UnexpectedResultError{Method: method, Expected: shape, Err: err}
		}
		return rs, nil
	}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
