// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the request and stream-event types for the data room
// question endpoint. For session types, see session.go.
package datatypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a single question.
	// Oversized payloads are rejected before any deadline starts.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of prior messages a caller
	// may attach to a request. Longer histories must be truncated client-side.
	MaxMessagesPerRequest = 100

	// MaxSubsetDocuments bounds an explicit document/folder subset filter.
	MaxSubsetDocuments = 500
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// askValidate is the validator instance for assistant datatypes.
// Initialized in init() with custom validators.
var askValidate *validator.Validate

func init() {
	askValidate = validator.New()
	_ = askValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxQueryBytes.
// Checks byte length (not rune count) to prevent memory exhaustion with large
// payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Request Types
// =============================================================================

// Message represents one prior turn attached to a request.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// AskRequest represents the body of a data room question.
//
// # Description
//
// AskRequest carries the viewer's question together with the conversation
// scope: the data room being queried, the link the viewer arrived through,
// and an optional explicit document/folder subset. Every request includes a
// unique ID and timestamp for audit trails and correlation.
//
// # Fields
//
//   - RequestID: Required. Unique identifier for this request (UUID v4).
//   - Timestamp: Required. Unix timestamp in milliseconds (UTC).
//   - DataroomID: Required. The document collection the question is scoped to.
//   - LinkID: Optional. Narrows scope to the documents shared by one link.
//   - ViewerID: Required. The asking party; used for access resolution.
//   - SessionID: Optional. Continues an existing conversation thread.
//   - Query: Required. The raw question text, limited to 32KB.
//   - Messages: Optional. Prior conversation turns (0-100 messages).
//   - DocumentIDs / FolderIDs: Optional. Explicit subset filters.
//
// # Validation
//
// Uses go-playground/validator. Call Validate() after binding the JSON body;
// it additionally rejects whitespace-only queries, which the tag-based rules
// cannot express.
type AskRequest struct {
	RequestID   string    `json:"request_id" validate:"required,uuid4"`
	Timestamp   int64     `json:"timestamp" validate:"required,gt=0"`
	DataroomID  string    `json:"dataroom_id" validate:"required"`
	LinkID      string    `json:"link_id,omitempty"`
	ViewerID    string    `json:"viewer_id" validate:"required"`
	SessionID   string    `json:"session_id,omitempty"`
	Query       string    `json:"query" validate:"required,maxbytes"`
	Messages    []Message `json:"messages,omitempty" validate:"max=100,dive"`
	DocumentIDs []string  `json:"document_ids,omitempty" validate:"max=500"`
	FolderIDs   []string  `json:"folder_ids,omitempty" validate:"max=500"`
}

// EnsureDefaults populates RequestID and Timestamp when the caller omitted
// them. Idempotent; existing values are never overwritten.
func (r *AskRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// Validate validates the AskRequest fields.
//
// # Description
//
// Performs tag-based validation plus the whitespace-only query check.
// A failure here is an InvalidQuery condition: it must be surfaced
// immediately, before any pipeline deadline starts.
//
// # Outputs
//
//   - error: Non-nil with a caller-safe description of the first violation.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query must not be empty")
	}
	if err := askValidate.Struct(r); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// Scope returns the conversation scope identifiers as a SessionScope.
func (r *AskRequest) Scope() SessionScope {
	return SessionScope{
		DataroomID: r.DataroomID,
		LinkID:     r.LinkID,
		ViewerID:   r.ViewerID,
	}
}

// =============================================================================
// Stream Event Types
// =============================================================================

// SourceInfo identifies a cited document in a sources event.
type SourceInfo struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// StreamEvent represents a single SSE event emitted to the caller.
//
// # Description
//
// Events are emitted in the order status → sources → token* → done, with
// error replacing the remainder of the stream on failure. Id, CreatedAt,
// Hash and PrevHash are populated by the SSE writer; the hash chain gives
// the caller an integrity check over content, sources and timestamps.
//
// # Fields
//
//   - Type: One of "status", "sources", "token", "done", "error".
//   - Content: Token text (token events only).
//   - Message: Human-readable status text (status events only).
//   - Error: Caller-safe error text (error events only).
//   - SessionId: Conversation thread id (done events only).
//   - Sources: Cited documents (sources events only).
type StreamEvent struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Message   string       `json:"message,omitempty"`
	Error     string       `json:"error,omitempty"`
	SessionId string       `json:"session_id,omitempty"`
	Sources   []SourceInfo `json:"sources,omitempty"`
	Id        string       `json:"id"`
	CreatedAt int64        `json:"created_at"`
	Hash      string       `json:"hash,omitempty"`
	PrevHash  string       `json:"prev_hash,omitempty"`
}
