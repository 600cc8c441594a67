// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"io"
	"log"
	"time"

	"github.com/hashicorp/go-memdb"
)

const (
	endpointsTableName       = "endpoints"
	pendingRequestsTableName = "pending_requests"
)

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		endpointsTableName: {
			Name: endpointsTableName,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
		pendingRequestsTableName: {
			Name: pendingRequestsTableName,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"endpoint_id": {
					Name:    "endpoint_id",
					Indexer: &memdb.StringFieldIndex{Field: "EndpointID"},
				},
			},
		},
	},
}

type StateStore struct {
	Endpoints       *EndpointStore
	PendingRequests *PendingRequestStore

	db *memdb.MemDB
}

func NewStateStore() (*StateStore, error) {
	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, err
	}

	return &StateStore{
		db: db,
		Endpoints: &EndpointStore{
			db:           db,
			tableName:    endpointsTableName,
			logger:       defaultLogger,
			TimeProvider: time.Now,
		},
		PendingRequests: &PendingRequestStore{
			db:        db,
			tableName: pendingRequestsTableName,
			logger:    defaultLogger,
		},
	}, nil
}

func (s *StateStore) SetLogger(logger *log.Logger) {
	s.Endpoints.logger = logger
	s.PendingRequests.logger = logger
}

var defaultLogger = log.New(io.Discard, "", 0)
