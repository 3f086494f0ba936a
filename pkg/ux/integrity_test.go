// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain produces a valid hash chain the way the server does: each event
// gets PrevHash from its predecessor before its own hash is computed.
func buildChain(events []StreamEvent) []StreamEvent {
	computer := NewSHA256HashComputer()
	prevHash := ""
	for i := range events {
		events[i].PrevHash = prevHash
		events[i].Hash = computer.ComputeEventHash(&events[i])
		prevHash = events[i].Hash
	}
	return events
}

func sampleEvents() []StreamEvent {
	return buildChain([]StreamEvent{
		{Type: StreamEventStatus, Message: "Searching documents...", Id: "ev-1", CreatedAt: 1},
		{Type: StreamEventSources, Sources: []SourceInfo{{DocumentID: "doc-1", Name: "NDA.pdf", Page: 2, Score: 0.9}}, Id: "ev-2", CreatedAt: 2},
		{Type: StreamEventToken, Content: "The ", Id: "ev-3", CreatedAt: 3},
		{Type: StreamEventToken, Content: "answer.", Id: "ev-4", CreatedAt: 4},
		{Type: StreamEventDone, SessionID: "sess-9", Id: "ev-5", CreatedAt: 5},
	})
}

func TestChainVerifier_ValidChain(t *testing.T) {
	events := sampleEvents()

	result := NewFullChainVerifier().Verify(events)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.ChainLength)
	assert.Equal(t, -1, result.InvalidEventIndex)
	assert.Equal(t, events[4].Hash, result.FinalHash)
	assert.Empty(t, result.ErrorMessage)
}

func TestChainVerifier_EmptyChain(t *testing.T) {
	result := NewFullChainVerifier().Verify(nil)
	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.ChainLength)
}

func TestChainVerifier_TamperedContent(t *testing.T) {
	events := sampleEvents()
	events[2].Content = "A forged "

	result := NewFullChainVerifier().Verify(events)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "hash mismatch")
}

func TestChainVerifier_TamperedSources(t *testing.T) {
	events := sampleEvents()
	events[1].Sources[0].Name = "Forged.pdf"

	result := NewFullChainVerifier().Verify(events)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.InvalidEventIndex)
}

func TestChainVerifier_BrokenLink(t *testing.T) {
	events := sampleEvents()
	// Drop an event from the middle: the link from ev-2 to ev-4 is broken.
	events = append(events[:2], events[3:]...)

	result := NewFullChainVerifier().Verify(events)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "chain broken")
}

func TestChainVerifier_NonEmptyFirstPrevHash(t *testing.T) {
	events := sampleEvents()[1:]

	result := NewFullChainVerifier().Verify(events)
	assert.False(t, result.Valid)
	assert.Equal(t, 0, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "empty prev_hash")
}

func TestHashComputer_Deterministic(t *testing.T) {
	computer := NewSHA256HashComputer()
	event := &StreamEvent{Type: StreamEventToken, Content: "Hello", Id: "ev-1", CreatedAt: 42}

	first := computer.ComputeEventHash(event)
	second := computer.ComputeEventHash(event)
	require.Len(t, first, 64)
	assert.Equal(t, first, second)

	event.Content = "Hello!"
	assert.NotEqual(t, first, computer.ComputeEventHash(event))
}

func TestHashComputer_ContentHash(t *testing.T) {
	computer := NewSHA256HashComputer()
	// Known SHA-256 of empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		computer.ComputeContentHash(""))
}

func TestTruncateHash(t *testing.T) {
	long := "abc123def456abc123def456abc123def456abc123def456abc123def456abc1"
	assert.Equal(t, "abc123de...abc1", truncateHash(long))
	assert.Equal(t, "short", truncateHash("short"))
	assert.Equal(t, "", truncateHash(""))
}
