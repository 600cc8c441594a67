// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package node wires the dispatch core together: the transport,
// method registry, dispatcher, correlator and endpoint registry
// sharing one state store.
package node

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/metrics"
	lsctx "github.com/eclipse-che/che-jsonrpc/internal/context"
	"github.com/eclipse-che/che-jsonrpc/internal/correlator"
	"github.com/eclipse-che/che-jsonrpc/internal/dispatch"
	"github.com/eclipse-che/che-jsonrpc/internal/endpoints"
	"github.com/eclipse-che/che-jsonrpc/internal/eventbus"
	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/eclipse-che/che-jsonrpc/internal/reception"
	"github.com/eclipse-che/che-jsonrpc/internal/services"
	"github.com/eclipse-che/che-jsonrpc/internal/settings"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/eclipse-che/che-jsonrpc/internal/transmission"
	"github.com/eclipse-che/che-jsonrpc/internal/transport"
	"github.com/hashicorp/go-multierror"
)

// StdioEndpointID identifies the single endpoint
// of a node serving its standard streams
const StdioEndpointID = "stdio"

type Node struct {
	ctx     context.Context
	opts    *settings.Options
	logger  *log.Logger
	metrics *metrics.M

	state        *state.StateStore
	methods      *methods.Registry
	configurator *reception.Configurator
	stream       *transport.Stream
	correlator   *correlator.Correlator
	bus          *eventbus.EventBus
	endpoints    *endpoints.Registry
	dispatcher   *dispatch.Dispatcher
	transmitter  *transmission.Transmitter
	services     *services.Services
}

// New builds a node from validated options. The node stops
// handling calls once ctx is done; Stop releases the rest.
func New(ctx context.Context, opts *settings.Options) (*Node, error) {
	if opts == nil {
		opts = settings.DefaultOptions()
	}
	err := opts.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	framing, err := framingFor(opts.Framing)
	if err != nil {
		return nil, err
	}

	ss, err := state.NewStateStore()
	if err != nil {
		return nil, err
	}

	n := &Node{
		ctx:     ctx,
		opts:    opts,
		logger:  log.New(io.Discard, "", 0),
		metrics: metrics.New(),
		state:   ss,
		methods: methods.NewRegistry(),
		bus:     eventbus.NewEventBus(),
	}

	n.stream = transport.NewStream(framing)
	n.stream.SetReceiver(n)
	n.stream.SetRateLimit(opts.RateLimit.MessagesPerSecond, opts.RateLimit.Burst)

	n.correlator = correlator.New(ss.PendingRequests, n.stream)
	n.endpoints = endpoints.NewRegistry(ss.Endpoints, n.correlator, n.correlator, n.bus)

	n.dispatcher = dispatch.NewDispatcher(ctx, n.methods, n.correlator, n.stream)
	if opts.RequestConcurrency > 0 {
		n.dispatcher.SetConcurrency(opts.RequestConcurrency)
	}

	n.configurator = reception.NewConfigurator(n.methods)
	n.transmitter = transmission.NewTransmitter(n.correlator, n.endpoints, requestTimeout(opts))

	version, ok := lsctx.ServerVersion(ctx)
	if !ok {
		version = "unknown"
	}
	n.services = services.NewServices(version, n.methods, ss.Endpoints, ss.PendingRequests, n.bus)
	err = n.services.Register(ctx, n.configurator)
	if err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}

	n.setMetrics(n.metrics)
	return n, nil
}

// zero in options means no deadline for outbound requests
func requestTimeout(opts *settings.Options) time.Duration {
	if opts.RequestTimeout == 0 {
		return correlator.NoTimeout
	}
	return opts.RequestTimeout
}

func framingFor(name string) (channel.Framing, error) {
	switch name {
	case settings.FramingLine:
		return channel.Line, nil
	case settings.FramingLSP:
		return channel.LSP, nil
	}
	return nil, fmt.Errorf("unknown framing %q", name)
}

func (n *Node) SetLogger(logger *log.Logger) {
	n.logger = logger
	n.state.SetLogger(logger)
	n.methods.SetLogger(logger)
	n.configurator.SetLogger(logger)
	n.stream.SetLogger(logger)
	n.correlator.SetLogger(logger)
	n.bus.SetLogger(logger)
	n.endpoints.SetLogger(logger)
	n.dispatcher.SetLogger(logger)
	n.dispatcher.SetRPCLogger(&rpcLogger{logger})
	n.transmitter.SetLogger(logger)
	n.services.SetLogger(logger)
}

func (n *Node) setMetrics(m *metrics.M) {
	n.methods.SetMetrics(m)
	n.stream.SetMetrics(m)
	n.correlator.SetMetrics(m)
	n.endpoints.SetMetrics(m)
	n.dispatcher.SetMetrics(m)
}

// Configurator registers inbound method handlers
func (n *Node) Configurator() *reception.Configurator {
	return n.configurator
}

// Transmitter sends calls to connected endpoints
func (n *Node) Transmitter() *transmission.Transmitter {
	return n.transmitter
}

func (n *Node) EventBus() *eventbus.EventBus {
	return n.bus
}

// Endpoints returns IDs of connected endpoints
func (n *Node) Endpoints() []string {
	return n.endpoints.IDs()
}

// Metrics returns a snapshot of counters and max values
// collected by all components of the node
func (n *Node) Metrics() map[string]int64 {
	snap := make(map[string]int64, 0)
	maxValues := make(map[string]int64, 0)
	n.metrics.Snapshot(metrics.Snapshot{
		Counter:  snap,
		MaxValue: maxValues,
	})
	for name, v := range maxValues {
		snap[name] = v
	}
	snap["correlator.pending"] = int64(n.correlator.Pending())
	return snap
}

// OnConnect implements transport.Receiver
func (n *Node) OnConnect(endpointID, remoteAddr string) {
	err := n.endpoints.OnConnect(endpointID, remoteAddr)
	if err != nil {
		n.logger.Printf("failed to register endpoint %q: %s", endpointID, err)
	}
}

// OnMessage implements transport.Receiver
func (n *Node) OnMessage(endpointID string, msg []byte) {
	n.dispatcher.Dispatch(endpointID, msg)
}

// OnDisconnect implements transport.Receiver
func (n *Node) OnDisconnect(endpointID string) {
	n.endpoints.OnDisconnect(endpointID)
}

// ListenAndServe accepts endpoints on the given TCP address
// until the node context is done.
func (n *Node) ListenAndServe(address string) error {
	n.logger.Printf("Starting TCP server (pid %d; concurrency: %d) at %q ...",
		os.Getpid(), n.dispatcher.Concurrency(), address)
	lst, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("TCP server failed to start: %s", err)
	}
	return n.Serve(lst)
}

func (n *Node) Serve(lst net.Listener) error {
	n.logger.Printf("TCP server running at %q", lst.Addr())

	err := n.stream.Serve(n.ctx, lst)
	if err != nil {
		n.logger.Printf("TCP server (pid %d) failed: %s", os.Getpid(), err)
		return err
	}

	n.logger.Printf("TCP server (pid %d) stopped.", os.Getpid())
	return nil
}

// Dial connects to a remote node and returns its endpoint ID.
// The connection lives as long as the node context.
func (n *Node) Dial(address string) (string, error) {
	id, err := n.stream.Dial(n.ctx, address)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %q: %w", address, err)
	}
	n.logger.Printf("connected to %q as endpoint %q", address, id)
	return id, nil
}

// ConnectPeers dials every peer from options, failing
// peers do not prevent connecting to the others.
func (n *Node) ConnectPeers() ([]string, error) {
	var result *multierror.Error
	ids := make([]string, 0, len(n.opts.Peers))
	for _, peer := range n.opts.Peers {
		id, err := n.Dial(peer)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, result.ErrorOrNil()
}

// Attach plugs an existing channel in as an endpoint
func (n *Node) Attach(endpointID string, ch channel.Channel) error {
	return n.stream.Attach(n.ctx, endpointID, ch)
}

// Disconnect closes the connection to the endpoint, requests
// still awaiting its response fail
func (n *Node) Disconnect(endpointID string) error {
	return n.stream.Disconnect(endpointID)
}

// ServeStream serves a single endpoint over the given reader and
// writer and blocks until it disconnects or the node context is done.
func (n *Node) ServeStream(reader io.Reader, writer io.WriteCloser) error {
	framing, err := framingFor(n.opts.Framing)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(n.ctx)
	defer cancelFunc()
	disconnected := n.bus.OnEndpointDisconnected(ctx, "node", nil)

	n.logger.Printf("Starting server (pid %d; concurrency: %d) ...",
		os.Getpid(), n.dispatcher.Concurrency())
	err = n.Attach(StdioEndpointID, framing(reader, writer))
	if err != nil {
		return err
	}

	for {
		select {
		case e := <-disconnected:
			if e.EndpointID == StdioEndpointID {
				n.logger.Printf("Server (pid %d) stopped.", os.Getpid())
				return nil
			}
		case <-ctx.Done():
			n.logger.Printf("Stopping server (pid %d) ...", os.Getpid())
			err := n.stream.Disconnect(StdioEndpointID)
			if err != nil && !transport.IsUnknownEndpoint(err) {
				return err
			}
			return nil
		}
	}
}

// Stop fails all pending requests, disconnects every endpoint
// and waits for running handlers to finish.
func (n *Node) Stop() error {
	var result *multierror.Error

	n.correlator.Close()

	err := n.stream.Close()
	if err != nil {
		result = multierror.Append(result, err)
	}

	n.dispatcher.Wait()

	return result.ErrorOrNil()
}
