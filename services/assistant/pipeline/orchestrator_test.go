// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/dataroom-qa/services/assistant/access"
	"github.com/veridocs/dataroom-qa/services/assistant/analysis"
	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
	"github.com/veridocs/dataroom-qa/services/assistant/retrieval"
	"github.com/veridocs/dataroom-qa/services/assistant/strategy"
	"github.com/veridocs/dataroom-qa/services/llm"
)

// ====== Mocks ======

// mockRetriever counts calls per mode and returns scripted results.
type mockRetriever struct {
	mu            sync.Mutex
	lexicalCalls  atomic.Int32
	semanticCalls atomic.Int32
	hybridCalls   atomic.Int32
	pageCalls     atomic.Int32

	chunks []retrieval.Chunk
	err    error
	// hybridErrFor fails hybrid passes whose query matches.
	hybridErrFor map[string]error
	// lastScope records the most recent scope for allow-list assertions.
	lastScope retrieval.Scope
}

func (m *mockRetriever) recordScope(scope retrieval.Scope) {
	m.mu.Lock()
	m.lastScope = scope
	m.mu.Unlock()
}

func (m *mockRetriever) scope() retrieval.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScope
}

func (m *mockRetriever) Lexical(_ context.Context, scope retrieval.Scope, _ string, _ int) ([]retrieval.Chunk, error) {
	m.lexicalCalls.Add(1)
	m.recordScope(scope)
	return m.chunks, m.err
}

func (m *mockRetriever) Semantic(_ context.Context, scope retrieval.Scope, _ string, _ int) ([]retrieval.Chunk, error) {
	m.semanticCalls.Add(1)
	m.recordScope(scope)
	return m.chunks, m.err
}

func (m *mockRetriever) Hybrid(_ context.Context, scope retrieval.Scope, query string, _ int) ([]retrieval.Chunk, error) {
	m.hybridCalls.Add(1)
	m.recordScope(scope)
	if err, ok := m.hybridErrFor[query]; ok {
		return nil, err
	}
	return m.chunks, m.err
}

func (m *mockRetriever) PageTargeted(_ context.Context, scope retrieval.Scope, _ string, pages []int, _ int) ([]retrieval.Chunk, error) {
	m.pageCalls.Add(1)
	m.recordScope(scope)
	if len(pages) == 0 {
		return nil, &retrieval.RetrievalError{Mode: "page-targeted", Err: errors.New("no pages")}
	}
	return m.chunks, m.err
}

// mockLLM streams scripted tokens and counts cleanup via closeCalls.
type mockLLM struct {
	tokens        []string
	generateText  string
	generateErr   error
	streamErr     error
	cancelMidway  bool
	cancelFn      context.CancelFunc
	closeCalls    atomic.Int32
	generateCalls atomic.Int32
	streamCalls   atomic.Int32
}

func (m *mockLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	m.generateCalls.Add(1)
	return m.generateText, m.generateErr
}

func (m *mockLLM) ChatStream(ctx context.Context, _ []datatypes.Message, _ llm.GenerationParams,
	callback llm.StreamCallback) error {

	m.streamCalls.Add(1)
	// Cleanup hook: runs on every exit path, like a real stream Close.
	defer m.closeCalls.Add(1)

	if m.streamErr != nil {
		return m.streamErr
	}
	for i, tok := range m.tokens {
		if m.cancelMidway && i == len(m.tokens)/2 {
			m.cancelFn()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: tok}); err != nil {
			return err
		}
	}
	return callback(llm.StreamEvent{Type: llm.StreamEventDone})
}

// ====== Helpers ======

func testDocs(n int) []access.Document {
	docs := make([]access.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, access.Document{
			DocumentID: fmt.Sprintf("doc-%d", i),
			Name:       fmt.Sprintf("Document %d", i),
			PageCount:  20,
		})
	}
	return docs
}

func testChunks() []retrieval.Chunk {
	return []retrieval.Chunk{
		{DocumentID: "doc-1", DocumentName: "Document 1", Page: 12, Content: "The termination clause...", Score: 0.9},
		{DocumentID: "doc-2", DocumentName: "Document 2", Page: 3, Content: "Notice period...", Score: 0.7},
	}
}

func informationalAnalysis(pages []int, variants []string) *analysis.QueryAnalysis {
	return &analysis.QueryAnalysis{
		Classification: analysis.ClassInformational,
		Complexity:     &analysis.ComplexityAnalysis{Score: 0.5, Level: analysis.ComplexityModerate},
		Extraction:     &analysis.QueryExtraction{Keywords: []string{"termination", "clause"}, Pages: pages},
		Rewriting:      &analysis.QueryRewriting{Strategy: analysis.ExpansionLexical, ContextWindowHint: 4096, Variants: variants},
		Sanitized:      "what is the termination clause",
	}
}

func baseRequest(sel strategy.Selection) Request {
	return Request{
		SanitizedQuery:      "what is the termination clause",
		DataroomID:          "dr-1",
		AccessibleDocuments: testDocs(5),
		Selection:           sel,
		Analysis:            informationalAnalysis(nil, nil),
	}
}

func collectTokens() (TokenEmitter, *[]string) {
	var tokens []string
	return func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	}, &tokens
}

// ====== Tests ======

func TestProcess_HappyPathStreams(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"The ", "clause ", "says..."}}
	orch := NewOrchestrator(retriever, llmClient)

	emit, tokens := collectTokens()
	answer, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassSemantic, Confidence: 0.7,
	}), nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, "The clause says...", answer.Text)
	assert.Equal(t, []string{"The ", "clause ", "says..."}, *tokens)
	assert.False(t, answer.Degraded)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "doc-1", answer.Sources[0].DocumentID)
	assert.Equal(t, int32(1), retriever.semanticCalls.Load())
	assert.Equal(t, int32(1), llmClient.closeCalls.Load(), "stream must be released exactly once")
}

func TestProcess_EmptyAccessibleSetRefused(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"x"}}
	orch := NewOrchestrator(retriever, llmClient)

	req := baseRequest(strategy.Selection{Strategy: strategy.SinglePassLexical})
	req.AccessibleDocuments = nil

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), req, nil, emit)

	assert.Nil(t, answer)
	assert.ErrorIs(t, err, ErrNoAccessibleDocuments)
	assert.Equal(t, int32(0), retriever.lexicalCalls.Load(), "retrieval must never run without access")
	assert.Equal(t, int32(0), llmClient.streamCalls.Load())
}

func TestProcess_RetrievalMissReturnsNilNil(t *testing.T) {
	retriever := &mockRetriever{chunks: nil}
	llmClient := &mockLLM{tokens: []string{"x"}}
	orch := NewOrchestrator(retriever, llmClient)

	emit, tokens := collectTokens()
	answer, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassLexical,
	}), nil, emit)

	assert.NoError(t, err, "a miss is not an error")
	assert.Nil(t, answer)
	assert.Empty(t, *tokens)
	assert.Equal(t, int32(0), llmClient.streamCalls.Load(), "no generation on a miss")
}

func TestProcess_CanceledBeforeRetrieval(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"x"}}
	orch := NewOrchestrator(retriever, llmClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emit, _ := collectTokens()
	answer, err := orch.Process(ctx, baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassSemantic,
	}), nil, emit)

	assert.Nil(t, answer)
	var canceled *CanceledError
	require.ErrorAs(t, err, &canceled, "pre-stage cancellation must short-circuit with the tagged kind")
	assert.True(t, IsCanceled(err))
	assert.Equal(t, int32(0), retriever.semanticCalls.Load(), "expensive stage must not run after cancel")
}

func TestProcess_CanceledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{
		tokens:       []string{"a", "b", "c", "d", "e", "f"},
		cancelMidway: true,
		cancelFn:     cancel,
	}
	orch := NewOrchestrator(retriever, llmClient)

	emit, _ := collectTokens()
	answer, err := orch.Process(ctx, baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassSemantic,
	}), nil, emit)

	assert.Nil(t, answer)
	var canceled *CanceledError
	require.ErrorAs(t, err, &canceled, "mid-generation abort is a cancellation, not a failure")
	assert.False(t, IsOrchestratorError(err), "cancellation must never be reported as a failure")
	assert.Equal(t, int32(1), llmClient.closeCalls.Load(), "aborted stream must still be released exactly once")
}

func TestProcess_GenerationFailureIsOrchestratorError(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{streamErr: errors.New("provider exploded")}
	orch := NewOrchestrator(retriever, llmClient)

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassSemantic,
	}), nil, emit)

	assert.Nil(t, answer)
	assert.True(t, IsOrchestratorError(err))
	assert.False(t, IsCanceled(err))
}

func TestProcess_PageTargetedUsesExtractedPages(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"answer"}}
	orch := NewOrchestrator(retriever, llmClient)

	req := baseRequest(strategy.Selection{Strategy: strategy.PageTargeted})
	req.Analysis = informationalAnalysis([]int{12}, nil)

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), req, nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, int32(1), retriever.pageCalls.Load())
}

func TestProcess_MultiQueryFansOutAndMerges(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"answer"}}
	orch := NewOrchestrator(retriever, llmClient)

	req := baseRequest(strategy.Selection{Strategy: strategy.HybridMultiQuery})
	req.Analysis = informationalAnalysis(nil, []string{"termination clause", "details about termination clause"})

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), req, nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.False(t, answer.Degraded)
	assert.Equal(t, int32(3), retriever.hybridCalls.Load(), "original plus two variants")
}

func TestProcess_PartialVariantFailureDegrades(t *testing.T) {
	retriever := &mockRetriever{
		chunks: testChunks(),
		hybridErrFor: map[string]error{
			"termination clause": &retrieval.RetrievalError{Mode: "hybrid", Err: errors.New("shard down")},
		},
	}
	llmClient := &mockLLM{tokens: []string{"answer"}}
	orch := NewOrchestrator(retriever, llmClient)

	req := baseRequest(strategy.Selection{Strategy: strategy.HybridMultiQuery})
	req.Analysis = informationalAnalysis(nil, []string{"termination clause"})

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), req, nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.True(t, answer.Degraded, "partial retrieval failure with usable context is a degradation")
	assert.NotEmpty(t, answer.Text)
}

func TestProcess_AllVariantsFailIsError(t *testing.T) {
	shardErr := &retrieval.RetrievalError{Mode: "hybrid", Err: errors.New("shard down")}
	retriever := &mockRetriever{
		chunks: testChunks(),
		hybridErrFor: map[string]error{
			"what is the termination clause": shardErr,
			"termination clause":             shardErr,
		},
	}
	llmClient := &mockLLM{tokens: []string{"answer"}}
	orch := NewOrchestrator(retriever, llmClient)

	req := baseRequest(strategy.Selection{Strategy: strategy.HybridMultiQuery})
	req.Analysis = informationalAnalysis(nil, []string{"termination clause"})

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), req, nil, emit)

	assert.Nil(t, answer)
	assert.True(t, IsOrchestratorError(err))
}

func TestProcess_HydeGeneratesThenSearches(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"answer"}, generateText: "A hypothetical passage about termination."}
	orch := NewOrchestrator(retriever, llmClient)

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.HydeExpanded,
	}), nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, int32(1), llmClient.generateCalls.Load())
	assert.Equal(t, int32(1), retriever.semanticCalls.Load())
}

func TestProcess_HydeExpansionFailureDegradesToHybrid(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"answer"}, generateErr: errors.New("provider down")}
	orch := NewOrchestrator(retriever, llmClient)

	emit, _ := collectTokens()
	answer, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.HydeExpanded,
	}), nil, emit)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.True(t, answer.Degraded)
	assert.Equal(t, int32(1), retriever.hybridCalls.Load())
	assert.Equal(t, int32(0), retriever.semanticCalls.Load())
}

func TestProcess_ScopeCarriesAllowList(t *testing.T) {
	retriever := &mockRetriever{chunks: testChunks()}
	llmClient := &mockLLM{tokens: []string{"answer"}}
	orch := NewOrchestrator(retriever, llmClient)

	emit, _ := collectTokens()
	_, err := orch.Process(context.Background(), baseRequest(strategy.Selection{
		Strategy: strategy.SinglePassLexical,
	}), nil, emit)

	require.NoError(t, err)
	assert.Equal(t, "dr-1", retriever.scope().DataroomID)
	assert.Equal(t, []string{"doc-0", "doc-1", "doc-2", "doc-3", "doc-4"},
		retriever.scope().AllowedDocumentIDs)
}
