// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/eclipse-che/che-jsonrpc/internal/reception"
)

const (
	PingMethod       = "rpc/ping"
	MethodsMethod    = "rpc/methods"
	EndpointsMethod  = "rpc/endpoints"
	PendingMethod    = "rpc/pending"
	EchoMethod       = "rpc/echo"
	LogMessageMethod = "window/logMessage"
)

type PingResult struct {
	Version    string `json:"version"`
	EndpointID string `json:"endpointId"`
}

type EndpointInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// PendingRequestInfo describes a request this node sent
// to the caller and still awaits the result of
type PendingRequestInfo struct {
	ID       string     `json:"id"`
	Method   string     `json:"method"`
	SentAt   time.Time  `json:"sentAt"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type MessageType int

const (
	_ MessageType = iota
	Error
	Warning
	Info
	Log
)

func (mt MessageType) prefix() string {
	switch mt {
	case Error:
		return "[ERROR]"
	case Warning:
		return "[WARN]"
	case Info:
		return "[INFO]"
	}
	return "[DEBUG]"
}

type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (s *Services) registerPing(cfg *reception.Configurator) error {
	return reception.NoneToOne[PingResult](cfg.NewRequestHandler(PingMethod)).
		WithFunction(func(ctx context.Context, endpointID string) (PingResult, error) {
			return PingResult{
				Version:    s.version,
				EndpointID: endpointID,
			}, nil
		})
}

func (s *Services) registerMethods(cfg *reception.Configurator) error {
	return reception.NoneToMany[string](cfg.NewRequestHandler(MethodsMethod)).
		WithFunction(func(ctx context.Context, endpointID string) ([]string, error) {
			return s.methods.Names(), nil
		})
}

func (s *Services) registerEndpoints(cfg *reception.Configurator) error {
	return reception.NoneToMany[EndpointInfo](cfg.NewRequestHandler(EndpointsMethod)).
		WithFunction(func(ctx context.Context, endpointID string) ([]EndpointInfo, error) {
			eps, err := s.endpoints.List()
			if err != nil {
				return nil, err
			}
			infos := make([]EndpointInfo, len(eps))
			for i, ep := range eps {
				infos[i] = EndpointInfo{
					ID:          ep.ID,
					RemoteAddr:  ep.RemoteAddr,
					ConnectedAt: ep.ConnectedAt,
				}
			}
			return infos, nil
		})
}

func (s *Services) registerPending(cfg *reception.Configurator) error {
	return reception.NoneToMany[PendingRequestInfo](cfg.NewRequestHandler(PendingMethod)).
		WithFunction(func(ctx context.Context, endpointID string) ([]PendingRequestInfo, error) {
			prs, err := s.pending.ListByEndpoint(endpointID)
			if err != nil {
				return nil, err
			}
			sort.Slice(prs, func(i, j int) bool {
				return prs[i].ID < prs[j].ID
			})
			infos := make([]PendingRequestInfo, len(prs))
			for i, pr := range prs {
				infos[i] = PendingRequestInfo{
					ID:     pr.ID,
					Method: pr.Method,
					SentAt: pr.SentAt,
				}
				if !pr.Deadline.IsZero() {
					deadline := pr.Deadline
					infos[i].Deadline = &deadline
				}
			}
			return infos, nil
		})
}

func (s *Services) registerEcho(cfg *reception.Configurator) error {
	return reception.OneToOne[json.RawMessage, json.RawMessage](cfg.NewRequestHandler(EchoMethod)).
		WithParamsFunction(func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			return params, nil
		})
}

func (s *Services) registerLogMessage(cfg *reception.Configurator) error {
	return reception.OneToNone[LogMessageParams](cfg.NewRequestHandler(LogMessageMethod)).
		WithConsumer(func(ctx context.Context, endpointID string, params LogMessageParams) error {
			s.logger.Printf("%s %s: %s", params.Type.prefix(), endpointID, params.Message)
			return nil
		})
}
