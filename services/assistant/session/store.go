// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists conversation threads and per-query telemetry.
//
// Every write here is best-effort from the pipeline's point of view: a failed
// session create or turn append is logged and the answer proceeds without it.
package session

import (
	"context"

	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
)

// SessionStore persists conversation threads.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// CreateSession creates a new thread and returns its ID.
	CreateSession(ctx context.Context, scope datatypes.SessionScope) (string, error)

	// AppendTurn appends one message to an existing thread.
	AppendTurn(ctx context.Context, turn datatypes.SessionTurn) error

	// LoadHistory returns up to maxTurns of a thread, oldest first.
	// An unknown session ID returns an empty slice, not an error.
	LoadHistory(ctx context.Context, sessionID string, maxTurns int) ([]datatypes.SessionTurn, error)

	// ListSessions returns the threads for a scope, newest first.
	ListSessions(ctx context.Context, scope datatypes.SessionScope) ([]datatypes.ChatSession, error)

	// DeleteSession removes a thread and all of its turns.
	DeleteSession(ctx context.Context, sessionID string) error
}

// QueryRecord is the per-query telemetry flushed after a response.
type QueryRecord struct {
	RequestID      string           `json:"request_id"`
	SessionID      string           `json:"session_id,omitempty"`
	DataroomID     string           `json:"dataroom_id"`
	ViewerID       string           `json:"viewer_id"`
	Classification string           `json:"classification,omitempty"`
	Strategy       string           `json:"strategy,omitempty"`
	Confidence     float64          `json:"confidence,omitempty"`
	FinalState     string           `json:"final_state"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	StageLatencies map[string]int64 `json:"stage_latencies,omitempty"` // milliseconds
	SourceCount    int              `json:"source_count"`
	Timestamp      int64            `json:"timestamp"`
}

// TelemetrySink records per-query telemetry.
type TelemetrySink interface {
	// RecordQuery persists one query record. Loss is acceptable; callers
	// invoke this detached from the request lifecycle.
	RecordQuery(ctx context.Context, rec QueryRecord) error
}
