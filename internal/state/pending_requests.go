// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse-che/che-jsonrpc/internal/methods"
	"github.com/hashicorp/go-memdb"
)

// Outcome is the terminal result of an outbound request.
// Exactly one of Result or Err is meaningful.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// ResolveSlot is completed at most once. The first caller of
// Complete wins and every later attempt is reported as lost.
type ResolveSlot struct {
	completed atomic.Bool
	done      chan struct{}
	outcome   Outcome

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewResolveSlot() *ResolveSlot {
	return &ResolveSlot{
		done: make(chan struct{}),
	}
}

func (s *ResolveSlot) Complete(o Outcome) bool {
	if !s.completed.CompareAndSwap(false, true) {
		return false
	}
	s.outcome = o
	close(s.done)

	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerMu.Unlock()
	return true
}

// SetTimer attaches a deadline timer which gets stopped
// once the slot completes.
func (s *ResolveSlot) SetTimer(t *time.Timer) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.timer = t
	if s.completed.Load() {
		t.Stop()
	}
}

func (s *ResolveSlot) Done() <-chan struct{} {
	return s.done
}

// Outcome must only be read after Done is closed
func (s *ResolveSlot) Outcome() Outcome {
	<-s.done
	return s.outcome
}

func (s *ResolveSlot) IsCompleted() bool {
	return s.completed.Load()
}

type PendingRequest struct {
	ID         string
	EndpointID string
	Method     string
	Result     methods.Shape
	SentAt     time.Time

	// Deadline is zero for requests without timeout
	Deadline time.Time

	Slot *ResolveSlot
}

func (pr *PendingRequest) Copy() *PendingRequest {
	if pr == nil {
		return nil
	}
	return &PendingRequest{
		ID:         pr.ID,
		EndpointID: pr.EndpointID,
		Method:     pr.Method,
		Result:     pr.Result,
		SentAt:     pr.SentAt,
		Deadline:   pr.Deadline,
		Slot:       pr.Slot,
	}
}

type PendingRequestStore struct {
	db        *memdb.MemDB
	tableName string
	logger    *log.Logger
}

func (s *PendingRequestStore) Insert(pr *PendingRequest) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(s.tableName, "id", pr.ID)
	if err != nil {
		return err
	}
	if obj != nil {
		return &AlreadyExistsError{
			Idx: pr.ID,
		}
	}

	err = txn.Insert(s.tableName, pr.Copy())
	if err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// Take removes the record and returns it. Only one of any
// number of concurrent callers receives a given record.
func (s *PendingRequestStore) Take(id string) (*PendingRequest, error) {
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
	return obj.(*PendingRequest).Copy(), nil
}

// TakeByEndpoint removes and returns all records of the given endpoint
func (s *PendingRequestStore) TakeByEndpoint(endpointID string) ([]*PendingRequest, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(s.tableName, "endpoint_id", endpointID)
	if err != nil {
		return nil, err
	}

	taken := make([]*PendingRequest, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		taken = append(taken, obj.(*PendingRequest))
	}

	for _, pr := range taken {
		err = txn.Delete(s.tableName, pr)
		if err != nil {
			return nil, err
		}
	}

	txn.Commit()

	prs := make([]*PendingRequest, len(taken))
	for i, pr := range taken {
		prs[i] = pr.Copy()
	}
	if len(prs) > 0 {
		s.logger.Printf("took %d pending requests of endpoint %q", len(prs), endpointID)
	}
	return prs, nil
}

// TakeAll removes and returns every pending record
func (s *PendingRequestStore) TakeAll() ([]*PendingRequest, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(s.tableName, "id")
	if err != nil {
		return nil, err
	}

	taken := make([]*PendingRequest, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		taken = append(taken, obj.(*PendingRequest).Copy())
	}

	_, err = txn.DeleteAll(s.tableName, "id")
	if err != nil {
		return nil, err
	}

	txn.Commit()
	return taken, nil
}

func (s *PendingRequestStore) ListByEndpoint(endpointID string) ([]*PendingRequest, error) {
	txn := s.db.Txn(false)

	it, err := txn.Get(s.tableName, "endpoint_id", endpointID)
	if err != nil {
		return nil, err
	}

	prs := make([]*PendingRequest, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		prs = append(prs, obj.(*PendingRequest).Copy())
	}
	return prs, nil
}

func (s *PendingRequestStore) Count() (int, error) {
	txn := s.db.Txn(false)

	it, err := txn.Get(s.tableName, "id")
	if err != nil {
		return 0, err
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		count++
	}
	return count, nil
}
