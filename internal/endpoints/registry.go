// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package endpoints keeps track of connected remote endpoints
// and fans notifications out to all of them.
package endpoints

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2/metrics"
	"github.com/eclipse-che/che-jsonrpc/internal/eventbus"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const DefaultBroadcastLimit = 16

// Canceller fails requests still awaiting a response
// from a disconnected endpoint.
type Canceller interface {
	CancelEndpoint(endpointID string) int
}

type Notifier interface {
	Notify(ctx context.Context, endpointID, method string, params interface{}) error
}

type Registry struct {
	store     *state.EndpointStore
	canceller Canceller
	notifier  Notifier
	bus       *eventbus.EventBus

	logger         *log.Logger
	metrics        *metrics.M
	broadcastLimit int
}

func NewRegistry(store *state.EndpointStore, canceller Canceller, notifier Notifier, bus *eventbus.EventBus) *Registry {
	return &Registry{
		store:          store,
		canceller:      canceller,
		notifier:       notifier,
		bus:            bus,
		logger:         log.New(io.Discard, "", 0),
		broadcastLimit: DefaultBroadcastLimit,
	}
}

func (r *Registry) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Registry) SetMetrics(m *metrics.M) {
	r.metrics = m
}

// SetBroadcastLimit caps how many endpoints are notified concurrently
func (r *Registry) SetBroadcastLimit(limit int) {
	r.broadcastLimit = limit
}

func (r *Registry) OnConnect(endpointID, remoteAddr string) error {
	ep, err := r.store.Add(endpointID, remoteAddr)
	if err != nil {
		return err
	}
	r.metrics.Count("endpoints.connected", 1)
	r.metrics.SetMaxValue("endpoints.max_connected", int64(r.count()))

	r.bus.EndpointConnected(eventbus.EndpointConnectedEvent{
		EndpointID:  ep.ID,
		RemoteAddr:  ep.RemoteAddr,
		ConnectedAt: ep.ConnectedAt,
	})
	return nil
}

// OnDisconnect forgets the endpoint and fails every request
// still pending on it. Handlers already running for the
// endpoint are left to finish.
func (r *Registry) OnDisconnect(endpointID string) {
	_, err := r.store.Remove(endpointID)
	if err != nil {
		r.logger.Printf("disconnecting %q: %s", endpointID, err)
	}

	cancelled := r.canceller.CancelEndpoint(endpointID)
	r.metrics.Count("endpoints.disconnected", 1)

	r.bus.EndpointDisconnected(eventbus.EndpointDisconnectedEvent{
		EndpointID:        endpointID,
		CancelledRequests: cancelled,
	})
}

func (r *Registry) IsConnected(endpointID string) bool {
	return r.store.Exists(endpointID)
}

func (r *Registry) List() ([]*state.Endpoint, error) {
	return r.store.List()
}

// IDs returns IDs of all connected endpoints in lexical order
func (r *Registry) IDs() []string {
	eps, err := r.store.List()
	if err != nil {
		r.logger.Printf("failed to list endpoints: %s", err)
		return []string{}
	}
	ids := make([]string, len(eps))
	for i, ep := range eps {
		ids[i] = ep.ID
	}
	return ids
}

// Broadcast notifies every connected endpoint. Each endpoint is
// attempted regardless of failures elsewhere and all failures
// are returned together.
func (r *Registry) Broadcast(ctx context.Context, method string, params interface{}) error {
	ids := r.IDs()
	if len(ids) == 0 {
		r.logger.Printf("broadcast of %q: no endpoints connected", method)
		return nil
	}

	var (
		mu     sync.Mutex
		failed []*BroadcastError
	)

	var g errgroup.Group
	g.SetLimit(r.broadcastLimit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := r.notifier.Notify(ctx, id, method, params)
			if err != nil {
				mu.Lock()
				failed = append(failed, &BroadcastError{EndpointID: id, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	r.metrics.Count("endpoints.broadcasts", 1)
	if len(failed) == 0 {
		return nil
	}

	sort.Slice(failed, func(i, j int) bool {
		return failed[i].EndpointID < failed[j].EndpointID
	})
	var result *multierror.Error
	for _, bErr := range failed {
		result = multierror.Append(result, bErr)
	}
	r.logger.Printf("broadcast of %q reached %d/%d endpoints",
		method, len(ids)-len(failed), len(ids))
	return result.ErrorOrNil()
}

func (r *Registry) count() int {
	eps, err := r.store.List()
	if err != nil {
		return 0
	}
	return len(eps)
}
