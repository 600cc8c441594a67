// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"log"
	"time"

	"github.com/hashicorp/go-memdb"
)

// Endpoint is a connected remote party. Records only live
// between the connect and disconnect of that party.
type Endpoint struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
}

func (e *Endpoint) Copy() *Endpoint {
	if e == nil {
		return nil
	}
	return &Endpoint{
		ID:          e.ID,
		RemoteAddr:  e.RemoteAddr,
		ConnectedAt: e.ConnectedAt,
	}
}

type EndpointStore struct {
	db        *memdb.MemDB
	tableName string
	logger    *log.Logger

	// TimeProvider provides current time (for mocking time.Now in tests)
	TimeProvider func() time.Time
}

func (s *EndpointStore) Add(id, remoteAddr string) (*Endpoint, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(s.tableName, "id", id)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		return nil, &AlreadyExistsError{
			Idx: id,
		}
	}

	ep := &Endpoint{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: s.TimeProvider(),
	}
	err = txn.Insert(s.tableName, ep)
	if err != nil {
		return nil, err
	}

	txn.Commit()
	s.logger.Printf("endpoint %q added (remote: %q)", id, remoteAddr)
	return ep.Copy(), nil
}

func (s *EndpointStore) Remove(id string) (*Endpoint, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(s.tableName, "id", id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &RecordNotFoundError{Source: id}
	}

	err = txn.Delete(s.tableName, obj)
	if err != nil {
		return nil, err
	}

	txn.Commit()
	s.logger.Printf("endpoint %q removed", id)
	return obj.(*Endpoint).Copy(), nil
}

func (s *EndpointStore) Get(id string) (*Endpoint, error) {
	txn := s.db.Txn(false)

	obj, err := txn.First(s.tableName, "id", id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &RecordNotFoundError{Source: id}
	}
	return obj.(*Endpoint).Copy(), nil
}

func (s *EndpointStore) Exists(id string) bool {
	txn := s.db.Txn(false)

	obj, err := txn.First(s.tableName, "id", id)
	return err == nil && obj != nil
}

// List returns all endpoints ordered by their ID
func (s *EndpointStore) List() ([]*Endpoint, error) {
	txn := s.db.Txn(false)

	it, err := txn.Get(s.tableName, "id")
	if err != nil {
		return nil, err
	}

	endpoints := make([]*Endpoint, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		endpoints = append(endpoints, obj.(*Endpoint).Copy())
	}
	return endpoints, nil
}
