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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/dataroom-qa/pkg/ux"
)

// writeChainedSSE emits events with a valid hash chain, mirroring what the
// assistant service produces.
func writeChainedSSE(w http.ResponseWriter, events []ux.StreamEvent) {
	computer := ux.NewSHA256HashComputer()
	prevHash := ""
	for i := range events {
		events[i].PrevHash = prevHash
		events[i].Hash = computer.ComputeEventHash(&events[i])
		prevHash = events[i].Hash

		data, _ := json.Marshal(events[i])
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events[i].Type, data)
	}
}

func answerStreamHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/datarooms/ask/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.RequestID)
		assert.NotZero(t, req.Timestamp)
		assert.Equal(t, "room-1", req.DataroomID)

		w.Header().Set("Content-Type", "text/event-stream")
		writeChainedSSE(w, []ux.StreamEvent{
			{Type: ux.StreamEventStatus, Message: "Searching documents...", Id: "ev-1", CreatedAt: 1},
			{Type: ux.StreamEventSources, Sources: []ux.SourceInfo{{DocumentID: "doc-1", Name: "NDA.pdf", Page: 2}}, Id: "ev-2", CreatedAt: 2},
			{Type: ux.StreamEventToken, Content: "The term is ", Id: "ev-3", CreatedAt: 3},
			{Type: ux.StreamEventToken, Content: "two years.", Id: "ev-4", CreatedAt: 4},
			{Type: ux.StreamEventDone, SessionID: "sess-1", Id: "ev-5", CreatedAt: 5},
		})
	}
}

func TestAPIClient_AskStream(t *testing.T) {
	server := httptest.NewServer(answerStreamHandler(t))
	defer server.Close()

	client := NewAPIClient(server.URL, "tok-1")
	body, err := client.AskStream(context.Background(), AskRequest{
		DataroomID: "room-1",
		ViewerID:   "viewer-1",
		Query:      "What is the term of the NDA?",
	})
	require.NoError(t, err)
	defer body.Close()

	var out bytes.Buffer
	result, err := consumeStream(context.Background(), body, &out, true)
	require.NoError(t, err)

	assert.Equal(t, "The term is two years.", result.Answer)
	assert.Equal(t, "sess-1", result.SessionID)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "NDA.pdf", result.Sources[0].Name)
	assert.Contains(t, out.String(), "The term is two years.")

	// The chain produced by the server must verify client-side.
	verification := ux.NewFullChainVerifier().Verify(result.Events)
	assert.True(t, verification.Valid, verification.ErrorMessage)
	assert.Equal(t, 5, verification.ChainLength)
}

func TestAPIClient_AskStream_ServerRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid request body"}`)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "")
	_, err := client.AskStream(context.Background(), AskRequest{Query: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestAPIClient_ListSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datarooms/room-1/sessions", r.URL.Path)
		assert.Equal(t, "viewer-1", r.URL.Query().Get("viewer_id"))
		assert.Equal(t, "link-1", r.URL.Query().Get("link_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"sessions":[{"session_id":"sess-1","created_at":1735657200000,"turn_count":4}]}`)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "")
	sessions, err := client.ListSessions(context.Background(), "room-1", "viewer-1", "link-1")
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].SessionID)
	assert.Equal(t, 4, sessions[0].TurnCount)
}

func TestAPIClient_GetSessionHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datarooms/sessions/sess-1/history", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"session_id":"sess-1","turns":[{"session_id":"sess-1","role":"user","content":"hello","timestamp":1}]}`)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "")
	turns, err := client.GetSessionHistory(context.Background(), "sess-1", 10)
	require.NoError(t, err)

	require.Len(t, turns, 1)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
}

func TestAPIClient_DeleteSession(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","deleted_session_id":"sess-1"}`)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "")
	require.NoError(t, client.DeleteSession(context.Background(), "sess-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/v1/datarooms/sessions/sess-1", gotPath)
}

func TestAPIClient_DeleteSession_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"failed to fully delete session"}`)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "")
	err := client.DeleteSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fully delete session")
}

func TestConsumeStream_ServerErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	computer := ux.NewSHA256HashComputer()
	event := ux.StreamEvent{Type: ux.StreamEventError, Error: "I apologize, but I ran into an internal problem.", Id: "ev-1", CreatedAt: 1}
	event.Hash = computer.ComputeEventHash(&event)
	data, _ := json.Marshal(event)

	stream := bytes.NewReader([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", data)))
	_, err := consumeStream(context.Background(), stream, &buf, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal problem")
}
