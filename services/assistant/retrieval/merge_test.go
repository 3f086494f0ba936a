// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeChunks_DedupKeepsHighestScore(t *testing.T) {
	shared := Chunk{DocumentID: "doc-1", Page: 3, Content: "termination clause", Score: 0.4}
	higher := shared
	higher.Score = 0.9

	merged := MergeChunks([][]Chunk{
		{shared, {DocumentID: "doc-2", Page: 1, Content: "other", Score: 0.5}},
		{higher},
	}, 10)

	assert.Len(t, merged, 2)
	assert.Equal(t, "doc-1", merged[0].DocumentID)
	assert.Equal(t, 0.9, merged[0].Score, "duplicate must keep the best score")
}

func TestMergeChunks_SortedAndTruncated(t *testing.T) {
	var set []Chunk
	for i := 0; i < 10; i++ {
		set = append(set, Chunk{
			DocumentID: fmt.Sprintf("doc-%d", i),
			Content:    fmt.Sprintf("chunk %d", i),
			Score:      float64(i) / 10.0,
		})
	}

	merged := MergeChunks([][]Chunk{set}, 3)
	assert.Len(t, merged, 3)
	assert.Equal(t, "doc-9", merged[0].DocumentID)
	assert.True(t, merged[0].Score >= merged[1].Score && merged[1].Score >= merged[2].Score)
}

func TestMergeChunks_SamePageDifferentContentKept(t *testing.T) {
	merged := MergeChunks([][]Chunk{{
		{DocumentID: "doc-1", Page: 3, Content: "first passage", Score: 0.5},
		{DocumentID: "doc-1", Page: 3, Content: "second passage", Score: 0.4},
	}}, 10)
	assert.Len(t, merged, 2)
}

func TestMergeChunks_Empty(t *testing.T) {
	assert.Empty(t, MergeChunks(nil, 5))
	assert.Empty(t, MergeChunks([][]Chunk{{}, {}}, 5))
}

func TestRetrievalError(t *testing.T) {
	inner := errors.New("boom")
	err := &RetrievalError{Mode: "hybrid", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.True(t, IsRetrievalError(err))
	assert.True(t, IsRetrievalError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRetrievalError(inner))
	assert.Contains(t, err.Error(), "hybrid")
}

func TestNewWeaviateRetriever_NilClientPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewWeaviateRetriever(nil)
	})
}
