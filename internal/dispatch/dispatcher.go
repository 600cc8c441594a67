// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package dispatch routes inbound envelopes either to the correlator
// (responses) or to registered method handlers (calls).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/creachadair/jrpc2/code"
	"github.com/creachadair/jrpc2/metrics"
	lsctx "github.com/eclipse-che/che-jsonrpc/internal/context"
	"github.com/eclipse-che/che-jsonrpc/internal/envelope"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/eclipse-che/che-jsonrpc/internal/dispatch"

type MethodLookup interface {
	Lookup(name string) (*methods.Descriptor, error)
}

type Resolver interface {
	Resolve(id string, result json.RawMessage) bool
	Reject(id string, eo *envelope.ErrorObject) bool
}

// RPCLogger is informed about every inbound call and every
// response sent back for it.
type RPCLogger interface {
	LogRequest(ctx context.Context, endpointID string, req *envelope.Envelope)
	LogResponse(ctx context.Context, endpointID string, req, rsp *envelope.Envelope)
}

type Dispatcher struct {
	ctx      context.Context
	methods  MethodLookup
	resolver Resolver
	sender   transport.Sender

	logger  *log.Logger
	rpcLog  RPCLogger
	metrics *metrics.M

	concurrency int
	semsMu      sync.Mutex
	sems        map[string]*semaphore.Weighted

	queuesMu sync.Mutex
	queues   map[queueKey]*queue
	wg       sync.WaitGroup
}

// Calls of the same method from the same endpoint
// are handled one after another in arrival order.
type queueKey struct {
	endpointID string
	method     string
}

type queue struct {
	calls   []*call
	running bool
}

type call struct {
	endpointID string
	env        *envelope.Envelope
	desc       *methods.Descriptor
}

func DefaultConcurrency() int {
	cpu := runtime.NumCPU()
	// Cap concurrency on powerful machines
	// to leave some capacity for the transport
	// and other applications
	if cpu >= 4 {
		return cpu / 2
	}
	return cpu
}

func NewDispatcher(ctx context.Context, ml MethodLookup, r Resolver, s transport.Sender) *Dispatcher {
	concurrency := DefaultConcurrency()
	return &Dispatcher{
		ctx:         ctx,
		methods:     ml,
		resolver:    r,
		sender:      s,
		logger:      log.New(io.Discard, "", 0),
		concurrency: concurrency,
		sems:        make(map[string]*semaphore.Weighted, 0),
		queues:      make(map[queueKey]*queue, 0),
	}
}

func (d *Dispatcher) SetLogger(logger *log.Logger) {
	d.logger = logger
}

func (d *Dispatcher) SetRPCLogger(rl RPCLogger) {
	d.rpcLog = rl
}

func (d *Dispatcher) SetMetrics(m *metrics.M) {
	d.metrics = m
}

// SetConcurrency caps the number of handlers of a single method
// running at once. Each method has its own cap, so handlers blocked
// in one method never hold back calls of another.
// It must be called before the first message is dispatched.
func (d *Dispatcher) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	d.semsMu.Lock()
	defer d.semsMu.Unlock()
	d.concurrency = n
	d.sems = make(map[string]*semaphore.Weighted, 0)
}

func (d *Dispatcher) methodSemaphore(method string) *semaphore.Weighted {
	d.semsMu.Lock()
	defer d.semsMu.Unlock()

	sem, ok := d.sems[method]
	if !ok {
		sem = semaphore.NewWeighted(int64(d.concurrency))
		d.sems[method] = sem
	}
	return sem
}

func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Dispatch processes a single inbound message (or batch) received
// from the given endpoint. Malformed messages are logged and dropped.
func (d *Dispatcher) Dispatch(endpointID string, raw []byte) {
	envs, err := envelope.ParseBatch(raw)
	if err != nil {
		d.metrics.Count("dispatch.malformed", 1)
		d.logger.Printf("dropping malformed message from %q: %s", endpointID, err)
		return
	}

	for _, env := range envs {
		d.dispatch(endpointID, env)
	}
}

func (d *Dispatcher) dispatch(endpointID string, env *envelope.Envelope) {
	switch envelope.Classify(env) {
	case envelope.ClassResponse:
		d.metrics.Count("dispatch.responses", 1)
		if !d.resolver.Resolve(env.ID.String(), env.Result) {
			d.logger.Printf("no pending request for response %s from %q", env.ID, endpointID)
		}
	case envelope.ClassErrorResponse:
		d.metrics.Count("dispatch.responses", 1)
		if env.ID.IsNull() {
			d.logger.Printf("error from %q not bound to any request: %s", endpointID, env.Error)
			return
		}
		if !d.resolver.Reject(env.ID.String(), env.Error) {
			d.logger.Printf("no pending request for error response %s from %q", env.ID, endpointID)
		}
	case envelope.ClassNotification:
		d.metrics.Count("dispatch.notifications", 1)
		d.handleNotification(endpointID, env)
	case envelope.ClassRequest:
		d.metrics.Count("dispatch.requests", 1)
		d.handleRequest(endpointID, env)
	}
}

func (d *Dispatcher) handleNotification(endpointID string, env *envelope.Envelope) {
	desc, err := d.methods.Lookup(env.Method)
	if err != nil {
		d.metrics.Count("dispatch.unhandled_notifications", 1)
		d.logger.Printf("ignoring notification %q from %q: %s", env.Method, endpointID, err)
		return
	}
	d.enqueue(&call{endpointID: endpointID, env: env, desc: desc})
}

func (d *Dispatcher) handleRequest(endpointID string, env *envelope.Envelope) {
	desc, err := d.methods.Lookup(env.Method)
	if err != nil {
		d.reply(d.ctx, endpointID, env, envelope.NewErrorResponse(env.ID,
			envelope.NewError(code.MethodNotFound, "method %q not found", env.Method)))
		return
	}

	if desc.IsConsumer() {
		d.reply(d.ctx, endpointID, env, envelope.NewErrorResponse(env.ID,
			envelope.NewError(code.InvalidRequest,
				"method %q does not produce a result, send it as a notification", env.Method)))
		return
	}

	d.enqueue(&call{endpointID: endpointID, env: env, desc: desc})
}

func (d *Dispatcher) enqueue(c *call) {
	key := queueKey{endpointID: c.endpointID, method: c.desc.Name}

	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()

	q, ok := d.queues[key]
	if !ok {
		q = &queue{}
		d.queues[key] = q
	}
	q.calls = append(q.calls, c)
	d.metrics.SetMaxValue("dispatch.max_queue_length", int64(len(q.calls)))

	if !q.running {
		q.running = true
		d.wg.Add(1)
		go d.drain(key, q)
	}
}

func (d *Dispatcher) drain(key queueKey, q *queue) {
	defer d.wg.Done()

	for {
		d.queuesMu.Lock()
		if len(q.calls) == 0 {
			q.running = false
			delete(d.queues, key)
			d.queuesMu.Unlock()
			return
		}
		c := q.calls[0]
		q.calls = q.calls[1:]
		d.queuesMu.Unlock()

		d.run(c)
	}
}

func (d *Dispatcher) run(c *call) {
	env := c.env
	sem := d.methodSemaphore(c.desc.Name)
	err := sem.Acquire(d.ctx, 1)
	if err != nil {
		if !env.IsNotification() {
			d.reply(context.Background(), c.endpointID, env, envelope.NewErrorResponse(env.ID,
				envelope.NewError(code.Cancelled, "server is shutting down")))
		}
		return
	}
	defer sem.Release(1)

	ctx := lsctx.WithEndpointID(d.ctx, c.endpointID)
	ctx = lsctx.WithMethod(ctx, env.Method)
	if !env.IsNotification() {
		ctx = lsctx.WithRequestID(ctx, env.ID.String())
	}

	if d.rpcLog != nil {
		d.rpcLog.LogRequest(ctx, c.endpointID, env)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rpc:"+env.Method,
		trace.WithAttributes(attribute.KeyValue{
			Key:   attribute.Key("EndpointID"),
			Value: attribute.StringValue(c.endpointID),
		}, attribute.KeyValue{
			Key:   attribute.Key("Method"),
			Value: attribute.StringValue(env.Method),
		}, attribute.KeyValue{
			Key:   attribute.Key("Shape"),
			Value: attribute.StringValue(c.desc.String()),
		}))

	result, err := d.invoke(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		d.metrics.Count("dispatch.handler_errors", 1)
	} else {
		span.SetStatus(codes.Ok, "handler finished")
	}
	span.End()

	if env.IsNotification() {
		if err != nil {
			d.logger.Printf("notification %q from %q failed: %s", env.Method, c.endpointID, err)
		}
		return
	}

	var rsp *envelope.Envelope
	if err != nil {
		rsp = envelope.NewErrorResponse(env.ID, envelope.ErrorFromError(err))
	} else {
		rsp, err = envelope.NewResponse(env.ID, result)
		if err != nil {
			rsp = envelope.NewErrorResponse(env.ID, envelope.NewError(code.InternalError,
				"failed to encode result: %s", err))
		}
	}
	d.reply(ctx, c.endpointID, env, rsp)
}

func (d *Dispatcher) invoke(ctx context.Context, c *call) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("handler for %q panicked: %v\n%s", c.desc.Name, r, debug.Stack())
			d.metrics.Count("dispatch.handler_panics", 1)
			err = fmt.Errorf("%w: handler for %q panicked: %v",
				code.InternalError.Err(), c.desc.Name, r)
		}
	}()

	return c.desc.Invoke(ctx, c.endpointID, c.env.Params)
}

func (d *Dispatcher) reply(ctx context.Context, endpointID string, req, rsp *envelope.Envelope) {
	if d.rpcLog != nil {
		d.rpcLog.LogResponse(ctx, endpointID, req, rsp)
	}

	msg, err := json.Marshal(rsp)
	if err != nil {
		d.logger.Printf("failed to encode response to %q (%s): %s", req.Method, req.ID, err)
		return
	}

	// delivered even when the handler context is done
	err = d.sender.Send(context.Background(), endpointID, msg)
	if err != nil {
		d.metrics.Count("dispatch.dropped_responses", 1)
		d.logger.Printf("dropping response to %q (%s) for %q: %s",
			req.Method, req.ID, endpointID, err)
	}
}

// Wait blocks until all queued and running handlers finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
