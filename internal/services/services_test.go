// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/creachadair/jrpc2/code"
	"github.com/eclipse-che/che-jsonrpc/internal/eventbus"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/reception"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/google/go-cmp/cmp"
)

type testEnv struct {
	registry *methods.Registry
	store    *state.StateStore
	bus      *eventbus.EventBus
	services *Services
}

func newTestEnv(t *testing.T) *testEnv {
	ctx, cancelFunc := context.WithCancel(context.Background())
	t.Cleanup(cancelFunc)

	ss, err := state.NewStateStore()
	if err != nil {
		t.Fatal(err)
	}
	reg := methods.NewRegistry()
	bus := eventbus.NewEventBus()
	svcs := NewServices("0.1.0", reg, ss.Endpoints, ss.PendingRequests, bus)

	err = svcs.Register(ctx, reception.NewConfigurator(reg))
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{
		registry: reg,
		store:    ss,
		bus:      bus,
		services: svcs,
	}
}

func (env *testEnv) connect(t *testing.T, endpointID string) {
	t.Helper()
	_, err := env.store.Endpoints.Add(endpointID, "")
	if err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) invoke(t *testing.T, endpointID, method, params string) (json.RawMessage, error) {
	t.Helper()
	d, err := env.registry.Lookup(method)
	if err != nil {
		t.Fatal(err)
	}
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	return d.Invoke(context.Background(), endpointID, raw)
}

func TestServices_registered(t *testing.T) {
	env := newTestEnv(t)

	expected := map[string]string{
		PingMethod:             "rpc/ping(none) -> services.PingResult",
		MethodsMethod:          "rpc/methods(none) -> []string",
		EndpointsMethod:        "rpc/endpoints(none) -> []services.EndpointInfo",
		PendingMethod:          "rpc/pending(none) -> []services.PendingRequestInfo",
		EchoMethod:             "rpc/echo(json.RawMessage) -> json.RawMessage",
		LogMessageMethod:       "window/logMessage(services.LogMessageParams) -> none",
		EditorFileMethod:       "track/editorFile(services.FileTrackingEvent) -> none",
		EditorFilesMethod:      "track/editorFiles(none) -> []services.TrackedFile",
		EditorFilesBatchMethod: "track/editorFilesBatch([]services.FileTrackingEvent) -> none",
	}
	given := make(map[string]string, 0)
	for _, name := range env.registry.Names() {
		d, err := env.registry.Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		given[name] = d.String()
	}
	if diff := cmp.Diff(expected, given); diff != "" {
		t.Fatalf("unexpected descriptors: %s", diff)
	}
}

func TestServices_ping(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.invoke(t, "ep-1", PingMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"version":"0.1.0","endpointId":"ep-1"}` {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestServices_echo(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.invoke(t, "ep-1", EchoMethod, `{"a":[1,2,3]}`)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":[1,2,3]}` {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestServices_endpoints(t *testing.T) {
	env := newTestEnv(t)
	connectedAt := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	env.store.Endpoints.TimeProvider = func() time.Time {
		return connectedAt
	}
	_, err := env.store.Endpoints.Add("ep-1", "10.0.0.1:5000")
	if err != nil {
		t.Fatal(err)
	}

	out, err := env.invoke(t, "ep-1", EndpointsMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	var infos []EndpointInfo
	err = json.Unmarshal(out, &infos)
	if err != nil {
		t.Fatal(err)
	}
	expected := []EndpointInfo{
		{ID: "ep-1", RemoteAddr: "10.0.0.1:5000", ConnectedAt: connectedAt},
	}
	if diff := cmp.Diff(expected, infos); diff != "" {
		t.Fatalf("unexpected endpoints: %s", diff)
	}
}

func TestServices_logMessage(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.invoke(t, "ep-1", LogMessageMethod, `{"type":3,"message":"hello"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("expected no result, given %s", out)
	}
}

func TestFileTracker_openInTwoEditors(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")

	events := []string{
		`{"type":"START","path":"/projects/a.go"}`,
		`{"type":"START","path":"/projects/a.go"}`,
		`{"type":"START","path":"/projects/b.go"}`,
		`{"type":"STOP","path":"/projects/a.go"}`,
	}
	for _, e := range events {
		_, err := env.invoke(t, "ep-1", EditorFileMethod, e)
		if err != nil {
			t.Fatal(err)
		}
	}

	out, err := env.invoke(t, "ep-1", EditorFilesMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	expected := `[{"path":"/projects/a.go","editors":1},{"path":"/projects/b.go","editors":1}]`
	if string(out) != expected {
		t.Fatalf("expected %s, given %s", expected, out)
	}

	out, err = env.invoke(t, "ep-2", EditorFilesMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[]` {
		t.Fatalf("expected other endpoint to track nothing, given %s", out)
	}
}

func TestFileTracker_batchAndSuspend(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")

	_, err := env.invoke(t, "ep-1", EditorFilesBatchMethod, `[
		{"type":"START","path":"/a"},
		{"type":"START","path":"/b"},
		{"type":"STOP","path":"/b"},
		{"type":"SUSPEND"}
	]`)
	if err != nil {
		t.Fatal(err)
	}

	tf := env.services.Files.Files("ep-1")
	expected := TrackedFiles{
		Suspended: true,
		Files:     []TrackedFile{{Path: "/a", Editors: 1}},
	}
	if diff := cmp.Diff(expected, tf); diff != "" {
		t.Fatalf("unexpected tracked files: %s", diff)
	}

	out, err := env.invoke(t, "ep-1", EditorFilesMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[]` {
		t.Fatalf("expected suspended tracking to report nothing, given %s", out)
	}

	_, err = env.invoke(t, "ep-1", EditorFileMethod, `{"type":"RESUME"}`)
	if err != nil {
		t.Fatal(err)
	}
	out, err = env.invoke(t, "ep-1", EditorFilesMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[{"path":"/a","editors":1}]` {
		t.Fatalf("unexpected tracked files: %s", out)
	}
}

func TestFileTracker_invalidEvents(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")

	testCases := []string{
		`{"type":"STOP","path":"/never/opened"}`,
		`{"type":"START"}`,
		`{"type":"REWIND","path":"/a"}`,
	}
	for _, tc := range testCases {
		_, err := env.invoke(t, "ep-1", EditorFileMethod, tc)
		if err == nil {
			t.Fatalf("expected %s to fail", tc)
		}
		if c := code.FromError(err); c != code.InvalidParams {
			t.Fatalf("expected invalid params for %s, given %d", tc, c)
		}
	}
	if env.services.Files.IsTracking("ep-1") {
		t.Fatal("expected invalid events to leave no state behind")
	}
}

func TestServices_forgetDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")

	_, err := env.invoke(t, "ep-1", EditorFileMethod, `{"type":"START","path":"/a"}`)
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.store.Endpoints.Remove("ep-1")
	if err != nil {
		t.Fatal(err)
	}
	env.bus.EndpointDisconnected(eventbus.EndpointDisconnectedEvent{EndpointID: "ep-1"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !env.services.Files.IsTracking("ep-1") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected tracked files of disconnected endpoint to be forgotten")
}

func TestFileTracker_applyAfterDisconnect(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")
	ft := env.services.Files

	err := ft.Apply("ep-1", FileTrackingEvent{Type: FileTrackingStart, Path: "/a"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.store.Endpoints.Remove("ep-1")
	if err != nil {
		t.Fatal(err)
	}
	ft.Forget("ep-1")

	// events queued before the disconnect and handled after it
	events := []FileTrackingEvent{
		{Type: FileTrackingStart, Path: "/b"},
		{Type: FileTrackingStop, Path: "/a"},
		{Type: FileTrackingSuspend},
	}
	for _, e := range events {
		err := ft.Apply("ep-1", e)
		if c := code.FromError(err); c != code.InvalidRequest {
			t.Fatalf("expected invalid request for %s, given %v", e.Type, err)
		}
	}

	if ft.IsTracking("ep-1") {
		t.Fatal("expected no state for disconnected endpoint")
	}
}

func TestServices_reconnectStartsClean(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "ep-1")

	_, err := env.invoke(t, "ep-1", EditorFileMethod, `{"type":"START","path":"/a"}`)
	if err != nil {
		t.Fatal(err)
	}

	// returns once subscribers are done with the event
	env.bus.EndpointConnected(eventbus.EndpointConnectedEvent{EndpointID: "ep-1"})

	if env.services.Files.IsTracking("ep-1") {
		t.Fatal("expected state of an earlier connection to be dropped")
	}
}

func TestServices_pending(t *testing.T) {
	env := newTestEnv(t)
	sentAt := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	deadline := sentAt.Add(10 * time.Second)

	records := []*state.PendingRequest{
		{ID: "01B", EndpointID: "ep-1", Method: "editor/save", SentAt: sentAt},
		{ID: "01A", EndpointID: "ep-1", Method: "editor/open", SentAt: sentAt, Deadline: deadline},
		{ID: "01C", EndpointID: "ep-2", Method: "editor/open", SentAt: sentAt},
	}
	for _, pr := range records {
		pr.Slot = state.NewResolveSlot()
		err := env.store.PendingRequests.Insert(pr)
		if err != nil {
			t.Fatal(err)
		}
	}

	out, err := env.invoke(t, "ep-1", PendingMethod, "")
	if err != nil {
		t.Fatal(err)
	}
	var infos []PendingRequestInfo
	err = json.Unmarshal(out, &infos)
	if err != nil {
		t.Fatal(err)
	}
	expected := []PendingRequestInfo{
		{ID: "01A", Method: "editor/open", SentAt: sentAt, Deadline: &deadline},
		{ID: "01B", Method: "editor/save", SentAt: sentAt},
	}
	if diff := cmp.Diff(expected, infos); diff != "" {
		t.Fatalf("unexpected pending requests: %s", diff)
	}
}
