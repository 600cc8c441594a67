// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package services provides the methods every node serves
// to its remote endpoints.
package services

import (
	"context"
	"io"
	"log"

	"github.com/eclipse-che/che-jsonrpc/internal/eventbus"
	"github.com/eclipse-che/che-jsonrpc/internal/reception"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
)

type MethodLister interface {
	Names() []string
}

type EndpointLister interface {
	Get(id string) (*state.Endpoint, error)
	List() ([]*state.Endpoint, error)
}

type PendingRequestLister interface {
	ListByEndpoint(endpointID string) ([]*state.PendingRequest, error)
}

type Services struct {
	logger    *log.Logger
	version   string
	methods   MethodLister
	endpoints EndpointLister
	pending   PendingRequestLister
	bus       *eventbus.EventBus

	Files *FileTracker
}

func NewServices(version string, ml MethodLister, el EndpointLister, pl PendingRequestLister,
	bus *eventbus.EventBus) *Services {
	return &Services{
		logger:    log.New(io.Discard, "", 0),
		version:   version,
		methods:   ml,
		endpoints: el,
		pending:   pl,
		bus:       bus,
		Files:     NewFileTracker(el),
	}
}

func (s *Services) SetLogger(logger *log.Logger) {
	s.logger = logger
	s.Files.logger = logger
}

// Register binds all services through the given configurator
// and starts dropping per-endpoint state on connect and disconnect
// until ctx is done.
func (s *Services) Register(ctx context.Context, cfg *reception.Configurator) error {
	registrations := []func(*reception.Configurator) error{
		s.registerPing,
		s.registerMethods,
		s.registerEndpoints,
		s.registerPending,
		s.registerEcho,
		s.registerLogMessage,
		s.Files.registerEditorFile,
		s.Files.registerEditorFiles,
		s.Files.registerEditorFilesBatch,
	}
	for _, register := range registrations {
		err := register(cfg)
		if err != nil {
			return err
		}
	}

	// connect waits for leftovers to be dropped,
	// the endpoint is read from only afterwards
	connectedDone := make(chan struct{})
	connected := s.bus.OnEndpointConnected(ctx, "services", connectedDone)
	disconnected := s.bus.OnEndpointDisconnected(ctx, "services", nil)
	go s.forgetEndpoints(ctx, connected, connectedDone, disconnected)
	return nil
}

// forgetEndpoints drops tracked files of endpoints that went away
// as well as any leftovers of an earlier connection with a reused ID
func (s *Services) forgetEndpoints(ctx context.Context, connected <-chan eventbus.EndpointConnectedEvent,
	connectedDone chan<- struct{}, disconnected <-chan eventbus.EndpointDisconnectedEvent) {
	for {
		select {
		case e := <-connected:
			s.Files.Forget(e.EndpointID)
			select {
			case connectedDone <- struct{}{}:
			case <-ctx.Done():
				return
			}
		case e := <-disconnected:
			s.Files.Forget(e.EndpointID)
		case <-ctx.Done():
			return
		}
	}
}
