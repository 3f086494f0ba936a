// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval fetches document chunks for an analyzed query.
//
// Every search mode applies the caller's document allow-list inside the
// store-side filter AND re-checks it on the returned rows. A chunk from a
// document outside the allow-list must never reach generation, even if the
// index is mis-tagged.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// Scope restricts retrieval to one data room and an explicit document
// allow-list. An empty allow-list means the viewer can see nothing; callers
// should not reach retrieval in that case.
type Scope struct {
	DataroomID string
	// AllowedDocumentIDs is the accessible-document set from access
	// resolution. Hard security boundary.
	AllowedDocumentIDs []string
}

// Chunk is one retrieved passage with citation metadata.
type Chunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

// RetrievalError reports a failed search pass. Distinct from a miss: a pass
// that runs cleanly and finds nothing returns an empty slice and nil error.
type RetrievalError struct {
	Mode string
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed (mode %s): %v", e.Mode, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsRetrievalError reports whether err is a RetrievalError.
func IsRetrievalError(err error) bool {
	var retrievalErr *RetrievalError
	return errors.As(err, &retrievalErr)
}

// Retriever executes one search pass per call. The orchestrator composes
// passes into strategies (variant fan-out, hypothetical-document expansion).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; hybrid-multi-query fans
// out over goroutines sharing one Retriever.
type Retriever interface {
	// Lexical runs a BM25 keyword pass.
	Lexical(ctx context.Context, scope Scope, query string, limit int) ([]Chunk, error)

	// Semantic runs a vector-similarity pass over text, which may be the
	// query itself or a hypothetical answer document.
	Semantic(ctx context.Context, scope Scope, text string, limit int) ([]Chunk, error)

	// Hybrid runs a combined keyword+vector pass.
	Hybrid(ctx context.Context, scope Scope, query string, limit int) ([]Chunk, error)

	// PageTargeted runs a pass restricted to the given page numbers.
	PageTargeted(ctx context.Context, scope Scope, query string, pages []int, limit int) ([]Chunk, error)
}
