package store

import "errors"

// ErrNotFound mirrors the teacher's pkg/services sentinel — callers compare
// with errors.Is rather than checking pgx.ErrNoRows directly, keeping the
// pgx dependency out of pkg/orchestrator and pkg/api.
var ErrNotFound = errors.New("store: entity not found")

// ErrAlreadyRunning signals the §4.D "at most one running PipelineRun per
// chat" invariant was about to be violated.
var ErrAlreadyRunning = errors.New("store: chat already has a running pipeline")
