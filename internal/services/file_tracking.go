// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2/code"
	"github.com/eclipse-che/che-jsonrpc/internal/reception"
	"github.com/eclipse-che/che-jsonrpc/internal/state"
)

const (
	EditorFileMethod       = "track/editorFile"
	EditorFilesMethod      = "track/editorFiles"
	EditorFilesBatchMethod = "track/editorFilesBatch"
)

type FileTrackingOperation uint

const (
	FileTrackingStart FileTrackingOperation = iota
	FileTrackingStop
	FileTrackingSuspend
	FileTrackingResume
)

var fileTrackingOperations = map[FileTrackingOperation]string{
	FileTrackingStart:   "START",
	FileTrackingStop:    "STOP",
	FileTrackingSuspend: "SUSPEND",
	FileTrackingResume:  "RESUME",
}

func (o FileTrackingOperation) String() string {
	if s, ok := fileTrackingOperations[o]; ok {
		return s
	}
	return fmt.Sprintf("FileTrackingOperation(%d)", o)
}

func (o FileTrackingOperation) MarshalText() ([]byte, error) {
	if s, ok := fileTrackingOperations[o]; ok {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unknown file tracking operation %d", o)
}

func (o *FileTrackingOperation) UnmarshalText(b []byte) error {
	for op, s := range fileTrackingOperations {
		if s == string(b) {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown file tracking operation %q", b)
}

// FileTrackingEvent is sent by an editor whenever a file gets
// opened or closed. The same file may be opened in more than
// one editor; tracking stops with the last one closed.
type FileTrackingEvent struct {
	Type FileTrackingOperation `json:"type"`
	Path string                `json:"path,omitempty"`
}

type TrackedFile struct {
	Path    string `json:"path"`
	Editors int    `json:"editors"`
}

type TrackedFiles struct {
	Suspended bool
	Files     []TrackedFile
}

type endpointFiles struct {
	editors   map[string]int
	suspended bool
}

// FileTracker keeps files open in editors of each endpoint.
// State is kept only for connected endpoints.
type FileTracker struct {
	logger    *log.Logger
	endpoints EndpointLister

	mu      sync.Mutex
	tracked map[string]*endpointFiles
}

func NewFileTracker(el EndpointLister) *FileTracker {
	return &FileTracker{
		logger:    log.New(io.Discard, "", 0),
		endpoints: el,
		tracked:   make(map[string]*endpointFiles, 0),
	}
}

func (ft *FileTracker) Apply(endpointID string, e FileTrackingEvent) error {
	switch e.Type {
	case FileTrackingStart, FileTrackingStop:
		if e.Path == "" {
			return fmt.Errorf("%w: %s requires a path", code.InvalidParams.Err(), e.Type)
		}
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	// endpoints leave the store before Forget runs for them
	_, err := ft.endpoints.Get(endpointID)
	if err != nil {
		if state.IsRecordNotFound(err) {
			return fmt.Errorf("%w: endpoint %q is not connected", code.InvalidRequest.Err(), endpointID)
		}
		return err
	}

	ef, ok := ft.tracked[endpointID]

	switch e.Type {
	case FileTrackingStart:
		if !ok {
			ef = ft.track(endpointID)
		}
		ef.editors[e.Path]++
		ft.logger.Printf("%s: tracking %q (editors: %d)", endpointID, e.Path, ef.editors[e.Path])
	case FileTrackingStop:
		if !ok {
			return fmt.Errorf("%w: %q is not tracked", code.InvalidParams.Err(), e.Path)
		}
		n, tracked := ef.editors[e.Path]
		if !tracked {
			return fmt.Errorf("%w: %q is not tracked", code.InvalidParams.Err(), e.Path)
		}
		if n <= 1 {
			delete(ef.editors, e.Path)
			ft.logger.Printf("%s: stopped tracking %q", endpointID, e.Path)
			return nil
		}
		ef.editors[e.Path] = n - 1
	case FileTrackingSuspend:
		if !ok {
			ef = ft.track(endpointID)
		}
		ef.suspended = true
		ft.logger.Printf("%s: file tracking suspended", endpointID)
	case FileTrackingResume:
		if !ok {
			return nil
		}
		ef.suspended = false
		ft.logger.Printf("%s: file tracking resumed", endpointID)
	default:
		return fmt.Errorf("%w: unknown operation %s", code.InvalidParams.Err(), e.Type)
	}
	return nil
}

func (ft *FileTracker) track(endpointID string) *endpointFiles {
	ef := &endpointFiles{editors: make(map[string]int, 0)}
	ft.tracked[endpointID] = ef
	return ef
}

// IsTracking reports whether any state is kept for the endpoint
func (ft *FileTracker) IsTracking(endpointID string) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	_, ok := ft.tracked[endpointID]
	return ok
}

// Files returns files tracked for the endpoint ordered by path
func (ft *FileTracker) Files(endpointID string) TrackedFiles {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ef, ok := ft.tracked[endpointID]
	if !ok {
		return TrackedFiles{Files: []TrackedFile{}}
	}

	files := make([]TrackedFile, 0, len(ef.editors))
	for path, n := range ef.editors {
		files = append(files, TrackedFile{Path: path, Editors: n})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return TrackedFiles{
		Suspended: ef.suspended,
		Files:     files,
	}
}

// Forget drops everything tracked for the endpoint
func (ft *FileTracker) Forget(endpointID string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if _, ok := ft.tracked[endpointID]; ok {
		delete(ft.tracked, endpointID)
		ft.logger.Printf("%s: forgot tracked files", endpointID)
	}
}

func (ft *FileTracker) registerEditorFile(cfg *reception.Configurator) error {
	return reception.OneToNone[FileTrackingEvent](cfg.NewRequestHandler(EditorFileMethod)).
		WithConsumer(func(ctx context.Context, endpointID string, e FileTrackingEvent) error {
			return ft.Apply(endpointID, e)
		})
}

func (ft *FileTracker) registerEditorFiles(cfg *reception.Configurator) error {
	return reception.NoneToMany[TrackedFile](cfg.NewRequestHandler(EditorFilesMethod)).
		WithFunction(func(ctx context.Context, endpointID string) ([]TrackedFile, error) {
			tf := ft.Files(endpointID)
			if tf.Suspended {
				return []TrackedFile{}, nil
			}
			return tf.Files, nil
		})
}

func (ft *FileTracker) registerEditorFilesBatch(cfg *reception.Configurator) error {
	return reception.ManyToNone[FileTrackingEvent](cfg.NewRequestHandler(EditorFilesBatchMethod)).
		WithConsumer(func(ctx context.Context, endpointID string, events []FileTrackingEvent) error {
			for _, e := range events {
				err := ft.Apply(endpointID, e)
				if err != nil {
					return err
				}
			}
			return nil
		})
}
