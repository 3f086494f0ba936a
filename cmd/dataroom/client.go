// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIClient talks to the assistant service.
//
// # Thread Safety
//
// Safe for concurrent use; all state is immutable after construction.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client for the given base URL. The client has no
// overall timeout because answer streams are long-lived; per-request
// deadlines come from the context.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// AskRequest is the body of POST /v1/datarooms/ask/stream.
type AskRequest struct {
	RequestID   string   `json:"request_id"`
	Timestamp   int64    `json:"timestamp"`
	DataroomID  string   `json:"dataroom_id"`
	LinkID      string   `json:"link_id,omitempty"`
	ViewerID    string   `json:"viewer_id"`
	SessionID   string   `json:"session_id,omitempty"`
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	FolderIDs   []string `json:"folder_ids,omitempty"`
}

// SessionSummary is one thread from the sessions listing.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	CreatedAt int64  `json:"created_at"`
	TurnCount int    `json:"turn_count"`
}

// SessionTurn is one message from a thread's history.
type SessionTurn struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// AskStream opens the answer stream. The caller owns the returned body and
// must close it.
func (c *APIClient) AskStream(ctx context.Context, req AskRequest) (io.ReadCloser, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/datarooms/ask/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ask request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.apiError(resp)
	}
	return resp.Body, nil
}

// ListSessions returns the viewer's threads in a data room.
func (c *APIClient) ListSessions(ctx context.Context, dataroomID, viewerID, linkID string) ([]SessionSummary, error) {
	query := url.Values{"viewer_id": {viewerID}}
	if linkID != "" {
		query.Set("link_id", linkID)
	}
	endpoint := fmt.Sprintf("%s/v1/datarooms/%s/sessions?%s",
		c.baseURL, url.PathEscape(dataroomID), query.Encode())

	var payload struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Sessions, nil
}

// GetSessionHistory returns a thread's messages, oldest first.
func (c *APIClient) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]SessionTurn, error) {
	endpoint := fmt.Sprintf("%s/v1/datarooms/sessions/%s/history",
		c.baseURL, url.PathEscape(sessionID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}

	var payload struct {
		Turns []SessionTurn `json:"turns"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Turns, nil
}

// DeleteSession removes a thread and its messages.
func (c *APIClient) DeleteSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/v1/datarooms/sessions/%s",
		c.baseURL, url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	return nil
}

func (c *APIClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *APIClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// apiError extracts the server's error message from a non-200 response.
func (c *APIClient) apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
