// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/creachadair/jrpc2/code"
	"github.com/eclipse-che/che-jsonrpc/internal/envelope"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/eclipse-che/che-jsonrpc/internal/transport/mock"
	tmock "github.com/stretchr/testify/mock"
)

func newTestCorrelator(t *testing.T, sender *mock.Sender) *Correlator {
	ss, err := state.NewStateStore()
	if err != nil {
		t.Fatal(err)
	}
	return New(ss.PendingRequests, sender)
}

func TestCorrelator_Send_resolve(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)

	var sent []byte
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).
		Run(func(args tmock.Arguments) {
			sent = args.Get(2).([]byte)
		}).
		Return(nil).Once()

	ctx := context.Background()
	h, err := c.Send(ctx, "ep-1", "rpc/ping", 5, methods.SingleOf[int](), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}

	req, err := envelope.Parse(sent)
	if err != nil {
		t.Fatal(err)
	}
	if envelope.Classify(req) != envelope.ClassRequest {
		t.Fatalf("expected request to be sent, given %s", envelope.Classify(req))
	}
	if req.ID.String() != h.ID {
		t.Fatalf("expected id %q on the wire, given %q", h.ID, req.ID.String())
	}
	if string(req.Params) != "5" {
		t.Fatalf("unexpected params: %s", req.Params)
	}

	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending request, given %d", c.Pending())
	}

	if !c.Resolve(h.ID, json.RawMessage(`6`)) {
		t.Fatal("expected response to resolve the request")
	}
	if c.Resolve(h.ID, json.RawMessage(`7`)) {
		t.Fatal("expected second response to be dropped")
	}

	result, err := h.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != "6" {
		t.Fatalf("expected result 6, given %s", result)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending requests, given %d", c.Pending())
	}
}

func TestCorrelator_Reject(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(nil)

	ctx := context.Background()
	h, err := c.Send(ctx, "ep-1", "fail", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}

	eo := envelope.NewError(code.InternalError, "boom")
	if !c.Reject(h.ID, eo) {
		t.Fatal("expected error response to reject the request")
	}

	_, err = h.Wait(ctx)
	var given *envelope.ErrorObject
	if !errors.As(err, &given) {
		t.Fatalf("expected error object, given %#v", err)
	}
	if given.Code != code.InternalError {
		t.Fatalf("unexpected code: %d", given.Code)
	}
}

func TestCorrelator_zeroTimeout(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(nil)

	ctx := context.Background()
	h, err := c.Send(ctx, "ep-1", "slow", nil, methods.SingleOf[string](), 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.Wait(ctx)
	if !IsRequestTimedOut(err) {
		t.Fatalf("expected timeout, given %#v", err)
	}

	if c.Resolve(h.ID, json.RawMessage(`"late"`)) {
		t.Fatal("expected late response to be dropped")
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending requests, given %d", c.Pending())
	}
}

func TestCorrelator_timeoutNotFiredAfterResolve(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(nil)

	ctx := context.Background()
	h, err := c.Send(ctx, "ep-1", "quick", nil, methods.SingleOf[string](), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Resolve(h.ID, json.RawMessage(`"ok"`)) {
		t.Fatal("expected response to resolve the request")
	}

	time.Sleep(100 * time.Millisecond)
	result, err := h.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `"ok"` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestCorrelator_CancelEndpoint(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, tmock.Anything, tmock.Anything).Return(nil)

	ctx := context.Background()
	a1, err := c.Send(ctx, "ep-a", "m", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := c.Send(ctx, "ep-a", "m", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}
	b1, err := c.Send(ctx, "ep-b", "m", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}

	cancelled := c.CancelEndpoint("ep-a")
	if cancelled != 2 {
		t.Fatalf("expected 2 cancelled requests, given %d", cancelled)
	}

	for _, h := range []*Handle{a1, a2} {
		_, err := h.Wait(ctx)
		if !IsEndpointDisconnected(err) {
			t.Fatalf("expected disconnect error, given %#v", err)
		}
	}

	select {
	case <-b1.Done():
		t.Fatal("request of other endpoint must stay pending")
	default:
	}
	if !c.Resolve(b1.ID, json.RawMessage(`null`)) {
		t.Fatal("expected request of other endpoint to resolve")
	}
}

func TestCorrelator_Send_transmitFailure(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)

	sendErr := errors.New("broken pipe")
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(sendErr)

	_, err := c.Send(context.Background(), "ep-1", "m", nil, methods.NoneShape(), NoTimeout)
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, given %#v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected pending record to be removed, given %d", c.Pending())
	}
}

func TestHandle_Wait_contextCancelled(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(nil)

	h, err := c.Send(context.Background(), "ep-1", "m", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	cancelFunc()

	_, err = h.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, given %#v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected pending record to be abandoned, given %d", c.Pending())
	}
	if c.Resolve(h.ID, json.RawMessage(`1`)) {
		t.Fatal("expected response to an abandoned request to be dropped")
	}
}

func TestCorrelator_Close(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).Return(nil).Once()

	ctx := context.Background()
	h, err := c.Send(ctx, "ep-1", "m", nil, methods.NoneShape(), NoTimeout)
	if err != nil {
		t.Fatal(err)
	}

	c.Close()

	_, err = h.Wait(ctx)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, given %#v", err)
	}

	_, err = c.Send(ctx, "ep-1", "m", nil, methods.NoneShape(), NoTimeout)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, given %#v", err)
	}
	err = c.Notify(ctx, "ep-1", "m", nil)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, given %#v", err)
	}
}

func TestCorrelator_Notify(t *testing.T) {
	sender := mock.NewSender(t)
	c := newTestCorrelator(t, sender)

	var sent []byte
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).
		Run(func(args tmock.Arguments) {
			sent = args.Get(2).([]byte)
		}).
		Return(nil).Once()

	err := c.Notify(context.Background(), "ep-1", "window/logMessage", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatal(err)
	}

	n, err := envelope.Parse(sent)
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsNotification() {
		t.Fatalf("expected notification, given %s", sent)
	}
	if c.Pending() != 0 {
		t.Fatalf("notifications must not be tracked, given %d pending", c.Pending())
	}
}

func TestNewRequestID_unique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := newRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
