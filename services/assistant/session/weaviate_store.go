// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
)

var tracer = otel.Tracer("dataroom.assistant.session")

// Weaviate classes for conversation persistence and query telemetry.
const (
	RoomSessionClass     = "RoomSession"
	RoomTurnClass        = "RoomTurn"
	RoomQueryRecordClass = "RoomQueryRecord"
)

// maxListedSessions bounds a ListSessions response.
const maxListedSessions = 200

// WeaviateStore persists sessions, turns and query records in Weaviate.
type WeaviateStore struct {
	client *weaviate.Client
}

var (
	_ SessionStore  = (*WeaviateStore)(nil)
	_ TelemetrySink = (*WeaviateStore)(nil)
)

// NewWeaviateStore creates a store. Panics on a nil client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	if client == nil {
		panic("session: weaviate client is required")
	}
	return &WeaviateStore{client: client}
}

// CreateSession implements the SessionStore interface.
func (s *WeaviateStore) CreateSession(ctx context.Context, scope datatypes.SessionScope) (string, error) {
	ctx, span := tracer.Start(ctx, "SessionStore.CreateSession")
	defer span.End()

	sessionID := uuid.New().String()
	properties := map[string]interface{}{
		"session_id":  sessionID,
		"dataroom_id": scope.DataroomID,
		"link_id":     scope.LinkID,
		"viewer_id":   scope.ViewerID,
		"created_at":  time.Now().UnixMilli(),
	}

	_, err := s.client.Data().Creator().
		WithClassName(RoomSessionClass).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to save session object: %w", err)
	}

	span.SetAttributes(attribute.String("session.id", sessionID))
	slog.Info("Created session", "sessionId", sessionID, "dataroomId", scope.DataroomID)
	return sessionID, nil
}

// AppendTurn implements the SessionStore interface.
func (s *WeaviateStore) AppendTurn(ctx context.Context, turn datatypes.SessionTurn) error {
	ctx, span := tracer.Start(ctx, "SessionStore.AppendTurn")
	defer span.End()

	if turn.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	timestamp := turn.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	properties := map[string]interface{}{
		"session_id": turn.SessionID,
		"role":       turn.Role,
		"content":    turn.Content,
		"timestamp":  timestamp,
	}

	_, err := s.client.Data().Creator().
		WithClassName(RoomTurnClass).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save turn object: %w", err)
	}
	return nil
}

// roomTurnResponse is the typed shape of a turn query.
type roomTurnResponse struct {
	Get struct {
		RoomTurn []struct {
			SessionID string  `json:"session_id"`
			Role      string  `json:"role"`
			Content   string  `json:"content"`
			Timestamp float64 `json:"timestamp"`
		} `json:"RoomTurn"`
	} `json:"Get"`
}

// LoadHistory implements the SessionStore interface.
func (s *WeaviateStore) LoadHistory(ctx context.Context, sessionID string, maxTurns int) ([]datatypes.SessionTurn, error) {
	ctx, span := tracer.Start(ctx, "SessionStore.LoadHistory")
	defer span.End()

	if sessionID == "" {
		return nil, nil
	}
	if maxTurns <= 0 {
		maxTurns = 20
	}

	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	sortBy := graphql.Sort{Path: []string{"timestamp"}, Order: graphql.Asc}

	result, err := s.client.GraphQL().Get().
		WithClassName(RoomTurnClass).
		WithFields(
			graphql.Field{Name: "session_id"},
			graphql.Field{Name: "role"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "timestamp"},
		).
		WithWhere(where).
		WithSort(sortBy).
		WithLimit(maxTurns).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query session history: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("query session history: %s", result.Errors[0].Message)
	}

	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal history response: %w", err)
	}
	var typed roomTurnResponse
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, fmt.Errorf("unmarshal history response: %w", err)
	}

	turns := make([]datatypes.SessionTurn, 0, len(typed.Get.RoomTurn))
	for _, t := range typed.Get.RoomTurn {
		if t.Content == "" {
			continue
		}
		turns = append(turns, datatypes.SessionTurn{
			SessionID: t.SessionID,
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: int64(t.Timestamp),
		})
	}

	span.SetAttributes(attribute.Int("session.turns_loaded", len(turns)))
	return turns, nil
}

// roomSessionResponse is the typed shape of a session query.
type roomSessionResponse struct {
	Get struct {
		RoomSession []struct {
			SessionID  string  `json:"session_id"`
			DataroomID string  `json:"dataroom_id"`
			LinkID     string  `json:"link_id"`
			ViewerID   string  `json:"viewer_id"`
			CreatedAt  float64 `json:"created_at"`
		} `json:"RoomSession"`
	} `json:"Get"`
}

// ListSessions implements the SessionStore interface.
func (s *WeaviateStore) ListSessions(ctx context.Context, scope datatypes.SessionScope) ([]datatypes.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "SessionStore.ListSessions")
	defer span.End()

	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"dataroom_id"}).
			WithOperator(filters.Equal).
			WithValueString(scope.DataroomID),
		filters.Where().
			WithPath([]string{"viewer_id"}).
			WithOperator(filters.Equal).
			WithValueString(scope.ViewerID),
	}
	if scope.LinkID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"link_id"}).
			WithOperator(filters.Equal).
			WithValueString(scope.LinkID))
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(RoomSessionClass).
		WithFields(
			graphql.Field{Name: "session_id"},
			graphql.Field{Name: "dataroom_id"},
			graphql.Field{Name: "link_id"},
			graphql.Field{Name: "viewer_id"},
			graphql.Field{Name: "created_at"},
		).
		WithWhere(filters.Where().WithOperator(filters.And).WithOperands(operands)).
		WithSort(graphql.Sort{Path: []string{"created_at"}, Order: graphql.Desc}).
		WithLimit(maxListedSessions).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("query sessions: %s", result.Errors[0].Message)
	}

	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions response: %w", err)
	}
	var typed roomSessionResponse
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, fmt.Errorf("unmarshal sessions response: %w", err)
	}

	sessions := make([]datatypes.ChatSession, 0, len(typed.Get.RoomSession))
	for _, row := range typed.Get.RoomSession {
		sessions = append(sessions, datatypes.ChatSession{
			SessionID: row.SessionID,
			Scope: datatypes.SessionScope{
				DataroomID: row.DataroomID,
				LinkID:     row.LinkID,
				ViewerID:   row.ViewerID,
			},
			CreatedAt: int64(row.CreatedAt),
		})
	}
	return sessions, nil
}

// DeleteSession implements the SessionStore interface.
//
// Turns are deleted first, then the session object, so a partial failure
// leaves an empty session rather than orphaned turns.
func (s *WeaviateStore) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "SessionStore.DeleteSession")
	defer span.End()

	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(RoomTurnClass).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session turns: %w", err)
	}

	_, err = s.client.Batch().ObjectsBatchDeleter().
		WithClassName(RoomSessionClass).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session object: %w", err)
	}

	slog.Info("Deleted session", "sessionId", sessionID)
	return nil
}

// RecordQuery implements the TelemetrySink interface.
func (s *WeaviateStore) RecordQuery(ctx context.Context, rec QueryRecord) error {
	ctx, span := tracer.Start(ctx, "TelemetrySink.RecordQuery")
	defer span.End()

	latencies, err := json.Marshal(rec.StageLatencies)
	if err != nil {
		latencies = []byte("{}")
	}

	properties := map[string]interface{}{
		"request_id":      rec.RequestID,
		"session_id":      rec.SessionID,
		"dataroom_id":     rec.DataroomID,
		"viewer_id":       rec.ViewerID,
		"classification":  rec.Classification,
		"strategy":        rec.Strategy,
		"confidence":      rec.Confidence,
		"final_state":     rec.FinalState,
		"fallback_reason": rec.FallbackReason,
		"stage_latencies": string(latencies),
		"source_count":    rec.SourceCount,
		"timestamp":       rec.Timestamp,
	}

	_, err = s.client.Data().Creator().
		WithClassName(RoomQueryRecordClass).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save query record: %w", err)
	}
	return nil
}
