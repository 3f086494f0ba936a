// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides the client-side streaming components for the Veridocs
// CLI: SSE parsing, stream consumption, hash chain verification and terminal
// feedback while an answer streams in.
package ux

// StreamEventType represents the type of a streaming event.
type StreamEventType string

const (
	StreamEventStatus  StreamEventType = "status"
	StreamEventToken   StreamEventType = "token"
	StreamEventSources StreamEventType = "sources"
	StreamEventDone    StreamEventType = "done"
	StreamEventError   StreamEventType = "error"
)

// SourceInfo identifies one cited document.
//
// The field order and JSON tags must match the server's wire format exactly;
// the sources array is serialized back to JSON during hash verification and
// any difference breaks the recomputed hash.
type SourceInfo struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// StreamEvent is one event received from the answer stream.
//
// # Description
//
// Mirrors the server's event shape. Id, CreatedAt, Hash and PrevHash are
// assigned server-side and preserved verbatim by the parser; regenerating
// them client-side would make chain verification impossible.
//
// # Fields
//
//   - Type: status, token, sources, done or error.
//   - Content: Token text (token events).
//   - Message: Human-readable status text (status events).
//   - Error: Caller-safe error text (error events).
//   - SessionID: Conversation thread id (done events).
//   - Sources: Cited documents (sources events).
//   - Hash/PrevHash: SHA-256 chain links for tamper evidence.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Sources   []SourceInfo    `json:"sources,omitempty"`
	Id        string          `json:"id"`
	CreatedAt int64           `json:"created_at"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`
}

// IsTerminal reports whether the event ends the stream.
func (e *StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// StreamCallback is invoked for each parsed event during Read. Returning an
// error stops consumption and propagates the error to the caller.
type StreamCallback func(event *StreamEvent) error

// StreamResult aggregates a fully consumed stream.
//
// # Fields
//
//   - Answer: Concatenated token content.
//   - Sources: Documents cited by the answer, if any.
//   - SessionID: Thread id from the done event.
//   - TotalEvents: Number of chained events received.
//   - ChainHash: Hash of the final event, fingerprinting the whole stream.
//   - Events: The raw events, retained for chain verification.
type StreamResult struct {
	Answer      string
	Sources     []SourceInfo
	SessionID   string
	TotalEvents int
	ChainHash   string
	Events      []StreamEvent
}
