// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Hash chain verification for answer streams.
//
// Each StreamEvent carries a Hash computed server-side from its content and
// a PrevHash linking to the previous event:
//
//	Event[0] → Event[1] → Event[2] → ... → Event[N]
//
// If any event is modified in transit or in storage, its recomputed hash no
// longer matches and the chain breaks at that index.

package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// secureHashEqual compares two hash strings in constant time.
func secureHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashComputer recomputes event hashes client-side.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type HashComputer interface {
	// ComputeEventHash recomputes the hash for an event from its fields.
	// The result must match the server's computation byte for byte.
	ComputeEventHash(event *StreamEvent) string

	// ComputeContentHash returns the SHA-256 hex digest of content.
	ComputeContentHash(content string) string
}

// ChainVerifier verifies the integrity of a received event chain.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ChainVerifier interface {
	// Verify walks the ordered event list, checking that every PrevHash
	// links to the previous event's Hash and that each stored Hash matches
	// a fresh recomputation.
	//
	// # Assumptions
	//
	//   - Events are in arrival order.
	//   - The first event has an empty PrevHash.
	Verify(events []StreamEvent) *ChainVerificationResult
}

// ChainVerificationResult reports the outcome of chain verification.
//
// # Fields
//
//   - Valid: Whether the entire chain is intact.
//   - ChainLength: Number of events checked.
//   - FinalHash: Hash of the last event when the chain is valid.
//   - InvalidEventIndex: First broken event, -1 when all are valid.
//   - ExpectedHash/ActualHash: The mismatch, when one was found.
//   - ErrorMessage: Human-readable description of the break.
//
// # Thread Safety
//
// Immutable after creation.
type ChainVerificationResult struct {
	Valid             bool   `json:"valid"`
	ChainLength       int    `json:"chain_length"`
	FinalHash         string `json:"final_hash,omitempty"`
	InvalidEventIndex int    `json:"invalid_event_index"`
	ExpectedHash      string `json:"expected_hash,omitempty"`
	ActualHash        string `json:"actual_hash,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

type sha256HashComputer struct{}

// NewSHA256HashComputer creates the production hash computer.
func NewSHA256HashComputer() HashComputer {
	return &sha256HashComputer{}
}

// ComputeEventHash implements the HashComputer interface. The field order
// mirrors the server's hash input exactly; sources are serialized to JSON
// first so both sides hash the same bytes.
func (c *sha256HashComputer) ComputeEventHash(event *StreamEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.Error,
		event.SessionID,
		sourcesJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// ComputeContentHash implements the HashComputer interface.
func (c *sha256HashComputer) ComputeContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

type fullChainVerifier struct {
	hashComputer HashComputer
}

// NewFullChainVerifier creates a verifier that recomputes every hash in the
// chain. O(n) hash computations, but answer streams are short enough that
// this is never a concern.
func NewFullChainVerifier() ChainVerifier {
	return &fullChainVerifier{hashComputer: NewSHA256HashComputer()}
}

// Verify implements the ChainVerifier interface.
func (v *fullChainVerifier) Verify(events []StreamEvent) *ChainVerificationResult {
	result := &ChainVerificationResult{
		Valid:             true,
		ChainLength:       len(events),
		InvalidEventIndex: -1,
	}

	if len(events) == 0 {
		return result
	}

	if events[0].PrevHash != "" {
		result.Valid = false
		result.InvalidEventIndex = 0
		result.ActualHash = events[0].PrevHash
		result.ErrorMessage = "first event should have empty prev_hash"
		return result
	}

	prevHash := ""
	for i := range events {
		event := &events[i]

		if !secureHashEqual(event.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = prevHash
			result.ActualHash = event.PrevHash
			result.ErrorMessage = fmt.Sprintf(
				"chain broken at event %d: expected prev_hash %s, got %s",
				i, truncateHash(prevHash), truncateHash(event.PrevHash))
			return result
		}

		computedHash := v.hashComputer.ComputeEventHash(event)
		if !secureHashEqual(computedHash, event.Hash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = computedHash
			result.ActualHash = event.Hash
			result.ErrorMessage = fmt.Sprintf(
				"hash mismatch at event %d: computed %s, stored %s",
				i, truncateHash(computedHash), truncateHash(event.Hash))
			return result
		}

		prevHash = event.Hash
	}

	result.FinalHash = events[len(events)-1].Hash
	return result
}

// truncateHash shortens a 64-char hash for error messages.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}

var (
	_ HashComputer  = (*sha256HashComputer)(nil)
	_ ChainVerifier = (*fullChainVerifier)(nil)
)
