// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package correlator matches responses arriving from remote endpoints
// to the outbound requests awaiting them.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/jrpc2/metrics"
	"github.com/eclipse-che/che-jsonrpc/internal/envelope"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/eclipse-che/che-jsonrpc/internal/transport"
	"github.com/oklog/ulid/v2"
)

// NoTimeout makes a request wait until it is resolved,
// its endpoint disconnects or the caller gives up.
const NoTimeout time.Duration = -1

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

type Correlator struct {
	store   *state.PendingRequestStore
	sender  transport.Sender
	logger  *log.Logger
	metrics *metrics.M
	closed  atomic.Bool

	// TimeProvider provides current time (for mocking time.Now in tests)
	TimeProvider func() time.Time
}

func New(store *state.PendingRequestStore, sender transport.Sender) *Correlator {
	return &Correlator{
		store:        store,
		sender:       sender,
		logger:       log.New(io.Discard, "", 0),
		TimeProvider: time.Now,
	}
}

func (c *Correlator) SetLogger(logger *log.Logger) {
	c.logger = logger
}

func (c *Correlator) SetMetrics(m *metrics.M) {
	c.metrics = m
}

// Send transmits a request to the given endpoint and returns
// a handle to await its outcome. The pending record exists
// before the first byte is sent, so a response can never
// arrive ahead of it.
func (c *Correlator) Send(ctx context.Context, endpointID, method string, params interface{},
	result methods.Shape, timeout time.Duration) (*Handle, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := newRequestID()
	req, err := envelope.NewRequest(envelope.StringID(id), method, params)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	now := c.TimeProvider()
	pr := &state.PendingRequest{
		ID:         id,
		EndpointID: endpointID,
		Method:     method,
		Result:     result,
		SentAt:     now,
		Slot:       state.NewResolveSlot(),
	}
	if timeout >= 0 {
		pr.Deadline = now.Add(timeout)
	}

	err = c.store.Insert(pr)
	if err != nil {
		return nil, err
	}

	err = c.sender.Send(ctx, endpointID, msg)
	if err != nil {
		if _, tErr := c.store.Take(id); tErr == nil {
			pr.Slot.Complete(state.Outcome{Err: err})
		}
		c.metrics.Count("correlator.send_failures", 1)
		return nil, fmt.Errorf("failed to send %q to %q: %w", method, endpointID, err)
	}
	c.metrics.Count("correlator.requests", 1)
	c.logger.Printf("request %s (%q) sent to %q", id, method, endpointID)

	if timeout >= 0 {
		pr.Slot.SetTimer(time.AfterFunc(timeout, func() {
			c.expire(pr, timeout)
		}))
	}

	return &Handle{
		ID:         id,
		EndpointID: endpointID,
		Method:     method,
		Result:     result,
		slot:       pr.Slot,
		c:          c,
	}, nil
}

// Notify transmits a notification, no response is expected.
func (c *Correlator) Notify(ctx context.Context, endpointID, method string, params interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}

	n, err := envelope.NewNotification(method, params)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(n)
	if err != nil {
		return err
	}

	err = c.sender.Send(ctx, endpointID, msg)
	if err != nil {
		return fmt.Errorf("failed to notify %q about %q: %w", endpointID, method, err)
	}
	c.metrics.Count("correlator.notifications", 1)
	return nil
}

// Resolve completes the pending request with the given result.
// It reports false when no such request is pending anymore.
func (c *Correlator) Resolve(id string, result json.RawMessage) bool {
	pr, err := c.store.Take(id)
	if err != nil {
		c.logger.Printf("dropping response %s: no pending request", id)
		c.metrics.Count("correlator.unmatched", 1)
		return false
	}

	ok := pr.Slot.Complete(state.Outcome{Result: result})
	if ok {
		c.metrics.Count("correlator.resolved", 1)
	}
	return ok
}

// Reject completes the pending request with an error object
// received from the remote endpoint.
func (c *Correlator) Reject(id string, eo *envelope.ErrorObject) bool {
	pr, err := c.store.Take(id)
	if err != nil {
		c.logger.Printf("dropping error response %s: no pending request", id)
		c.metrics.Count("correlator.unmatched", 1)
		return false
	}

	ok := pr.Slot.Complete(state.Outcome{Err: eo})
	if ok {
		c.metrics.Count("correlator.rejected", 1)
	}
	return ok
}

// CancelEndpoint fails every request pending on the given endpoint
// and returns how many were failed.
func (c *Correlator) CancelEndpoint(endpointID string) int {
	prs, err := c.store.TakeByEndpoint(endpointID)
	if err != nil {
		c.logger.Printf("failed to cancel requests of %q: %s", endpointID, err)
		return 0
	}

	cancelled := 0
	for _, pr := range prs {
		if pr.Slot.Complete(state.Outcome{Err: &EndpointDisconnectedError{
			ID:         pr.ID,
			EndpointID: endpointID,
			Method:     pr.Method,
		}}) {
			cancelled++
		}
	}
	if cancelled > 0 {
		c.logger.Printf("cancelled %d pending requests of %q", cancelled, endpointID)
		c.metrics.Count("correlator.cancelled", int64(cancelled))
	}
	return cancelled
}

// Close fails all pending requests and rejects any further sends.
func (c *Correlator) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	prs, err := c.store.TakeAll()
	if err != nil {
		c.logger.Printf("failed to close pending requests: %s", err)
		return
	}
	for _, pr := range prs {
		pr.Slot.Complete(state.Outcome{Err: ErrClosed})
	}
	c.logger.Printf("correlator closed, %d pending requests failed", len(prs))
}

// Pending returns the number of requests awaiting a response
func (c *Correlator) Pending() int {
	n, err := c.store.Count()
	if err != nil {
		return 0
	}
	return n
}

func (c *Correlator) expire(pr *state.PendingRequest, timeout time.Duration) {
	_, err := c.store.Take(pr.ID)
	if err != nil {
		// already resolved
		return
	}

	if pr.Slot.Complete(state.Outcome{Err: &RequestTimedOutError{
		ID:         pr.ID,
		EndpointID: pr.EndpointID,
		Method:     pr.Method,
		Timeout:    timeout,
	}}) {
		c.logger.Printf("request %s (%q) to %q timed out", pr.ID, pr.Method, pr.EndpointID)
		c.metrics.Count("correlator.timeouts", 1)
	}
}

func (c *Correlator) abandon(id string, reason error) {
	pr, err := c.store.Take(id)
	if err != nil {
		return
	}
	if pr.Slot.Complete(state.Outcome{Err: reason}) {
		c.logger.Printf("request %s (%q) abandoned: %s", id, pr.Method, reason)
		c.metrics.Count("correlator.abandoned", 1)
	}
}
