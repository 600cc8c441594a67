// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eclipse-che/che-jsonrpc/internal/correlator"
	"github.com/eclipse-che/che-jsonrpc/internal/envelope"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/eclipse-che/che-jsonrpc/internal/transport/mock"
	"github.com/google/go-cmp/cmp"
	tmock "github.com/stretchr/testify/mock"
)

type recordingBroadcaster struct {
	methods []string
	err     error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, method string, params interface{}) error {
	b.methods = append(b.methods, method)
	return b.err
}

type testEnv struct {
	transmitter *Transmitter
	correlator  *correlator.Correlator
	sender      *mock.Sender
	broadcaster *recordingBroadcaster
	sent        chan *envelope.Envelope
}

func newTestEnv(t *testing.T) *testEnv {
	ss, err := state.NewStateStore()
	if err != nil {
		t.Fatal(err)
	}
	sender := mock.NewSender(t)
	c := correlator.New(ss.PendingRequests, sender)
	b := &recordingBroadcaster{}

	env := &testEnv{
		transmitter: NewTransmitter(c, b, correlator.NoTimeout),
		correlator:  c,
		sender:      sender,
		broadcaster: b,
		sent:        make(chan *envelope.Envelope, 10),
	}
	sender.On("Send", tmock.Anything, "ep-1", tmock.Anything).
		Run(func(args tmock.Arguments) {
			e, err := envelope.Parse(args.Get(2).([]byte))
			if err != nil {
				t.Error(err)
				return
			}
			env.sent <- e
		}).
		Return(nil).Maybe()
	return env
}

func (env *testEnv) respond(t *testing.T, result string) {
	t.Helper()
	req := <-env.sent
	if !env.correlator.Resolve(req.ID.String(), json.RawMessage(result)) {
		t.Fatalf("no pending request %s", req.ID)
	}
}

func TestSendAndReceiveOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := SendAndReceiveOne[int](ctx, env.transmitter.NewCall("rpc/ping").
		EndpointID("ep-1").
		Params(5))
	if err != nil {
		t.Fatal(err)
	}
	env.respond(t, `6`)

	n, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Fatalf("expected 6, given %d", n)
	}
}

func TestSendAndReceiveMany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	type file struct {
		Path string `json:"path"`
	}

	p, err := SendAndReceiveMany[file](ctx, env.transmitter.NewCall("track/editorFiles").
		EndpointID("ep-1"))
	if err != nil {
		t.Fatal(err)
	}
	env.respond(t, `[{"path":"/a.go"},{"path":"/b.go"}]`)

	files, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	expected := []file{{"/a.go"}, {"/b.go"}}
	if diff := cmp.Diff(expected, files); diff != "" {
		t.Fatalf("unexpected files: %s", diff)
	}
}

func TestSendAndReceiveMany_unexpectedResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := SendAndReceiveMany[string](ctx, env.transmitter.NewCall("m").EndpointID("ep-1"))
	if err != nil {
		t.Fatal(err)
	}
	env.respond(t, `"not an array"`)

	_, err = p.Wait(ctx)
	if !IsUnexpectedResult(err) {
		t.Fatalf("expected unexpected result error, given %#v", err)
	}
}

func TestSendAndReceiveMany_nullIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := SendAndReceiveMany[string](ctx, env.transmitter.NewCall("m").EndpointID("ep-1"))
	if err != nil {
		t.Fatal(err)
	}
	env.respond(t, `null`)

	items, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty slice, given %#v", items)
	}
}

func TestSendAndReceiveNone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.transmitter.NewCall("m").EndpointID("ep-1").SendAndReceiveNone(ctx)
	if err != nil {
		t.Fatal(err)
	}
	env.respond(t, `null`)

	_, err = p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
}

func TestCall_Timeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := SendAndReceiveOne[string](ctx, env.transmitter.NewCall("slow").
		EndpointID("ep-1").
		Timeout(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	<-env.sent

	_, err = p.Wait(ctx)
	if !correlator.IsRequestTimedOut(err) {
		t.Fatalf("expected timeout, given %#v", err)
	}
}

func TestCall_invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := SendAndReceiveOne[int](ctx, env.transmitter.NewCall("m"))
	if !IsInvalidCall(err) {
		t.Fatalf("expected invalid call without endpoint, given %#v", err)
	}

	_, err = SendAndReceiveOne[int](ctx, env.transmitter.NewCall("m").Broadcast())
	if !IsInvalidCall(err) {
		t.Fatalf("expected invalid broadcast request, given %#v", err)
	}

	_, err = SendAndReceiveOne[int](ctx, env.transmitter.NewCall("").EndpointID("ep-1"))
	if !IsInvalidCall(err) {
		t.Fatalf("expected invalid call without method, given %#v", err)
	}
}

func TestCall_SendAndSkipResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.transmitter.NewCall("window/logMessage").
		EndpointID("ep-1").
		Params(map[string]string{"message": "hi"}).
		SendAndSkipResult(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n := <-env.sent
	if !n.IsNotification() || n.Method != "window/logMessage" {
		t.Fatalf("unexpected envelope: %#v", n)
	}

	err = env.transmitter.NewCall("window/logMessage").
		Broadcast().
		SendAndSkipResult(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"window/logMessage"}, env.broadcaster.methods); diff != "" {
		t.Fatalf("unexpected broadcasts: %s", diff)
	}
}

func TestTransmit_broadcastError(t *testing.T) {
	env := newTestEnv(t)
	bErr := errors.New("ep-2 unreachable")
	env.broadcaster.err = bErr

	err := env.transmitter.Transmit(context.Background(), Broadcast, "m", nil)
	if !errors.Is(err, bErr) {
		t.Fatalf("expected broadcast error, given %#v", err)
	}
}
