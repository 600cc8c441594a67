// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package correlator

import (
	"context"
	"encoding/json"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
)

// Handle represents a single outbound request awaiting its outcome.
type Handle struct {
	ID         string
	EndpointID string
	Method     string
	Result     methods.Shape

	slot *state.ResolveSlot
	c    *Correlator
}

// Done is closed once the request is resolved or failed
func (h *Handle) Done() <-chan struct{} {
	return h.slot.Done()
}

// Wait blocks until the request completes. When ctx is done first,
// the pending request is abandoned and the context error returned,
// unless a response won the race.
func (h *Handle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-h.slot.Done():
	case <-ctx.Done():
		h.c.abandon(h.ID, ctx.Err())
	}

	o := h.slot.Outcome()
	return o.Result, o.Err
}
