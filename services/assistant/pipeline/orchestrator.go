// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates retrieval and generation for one query.
//
// One request is one logical task: cancellation is a single shared context
// threaded through every suspension point, and every stage failure is
// translated into exactly one taxonomy kind before crossing a stage
// boundary. The document index is read-only here; the only mutation this
// package performs is telemetry accumulation on the caller's tracker.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/veridocs/dataroom-qa/services/assistant/access"
	"github.com/veridocs/dataroom-qa/services/assistant/analysis"
	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
	"github.com/veridocs/dataroom-qa/services/assistant/retrieval"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
	"github.com/veridocs/dataroom-qa/services/assistant/strategy"
	"github.com/veridocs/dataroom-qa/services/llm"
)

var tracer = otel.Tracer("dataroom.assistant.pipeline")

// chunkLimit is how many passages feed generation.
const chunkLimit = 8

// variantFanoutLimit bounds parallel hybrid passes.
const variantFanoutLimit = 4

// approxBytesPerToken converts the context-window hint (tokens) to a byte
// budget for history folding.
const approxBytesPerToken = 4

// TokenEmitter receives generated tokens in order. Returning an error aborts
// the stream.
type TokenEmitter func(token string) error

// Request carries one query through the orchestrator.
type Request struct {
	SanitizedQuery string
	DataroomID     string
	// AccessibleDocuments is the resolver's allow-list. The orchestrator
	// refuses to run on an empty set.
	AccessibleDocuments []access.Document
	History             []datatypes.SessionTurn
	Selection           strategy.Selection
	Analysis            *analysis.QueryAnalysis
	SessionID           string
	// OnSources, when set, is invoked with the citation list after
	// retrieval succeeds and before the first token is generated, so
	// callers can emit sources ahead of the token stream.
	OnSources func(sources []datatypes.SourceInfo) error
}

// Answer is the orchestrator's result for a successful run.
type Answer struct {
	Text    string
	Sources []datatypes.SourceInfo
	// Degraded is set when some retrieval passes failed but at least one
	// produced usable context.
	Degraded bool
}

// Orchestrator executes a strategy's retrieval plan and streams generation.
type Orchestrator struct {
	retriever retrieval.Retriever
	llmClient llm.LLMClient
}

// NewOrchestrator creates an orchestrator. Panics on nil hard deps.
func NewOrchestrator(retriever retrieval.Retriever, llmClient llm.LLMClient) *Orchestrator {
	if retriever == nil {
		panic("pipeline: retriever is required")
	}
	if llmClient == nil {
		panic("pipeline: llm client is required")
	}
	return &Orchestrator{retriever: retriever, llmClient: llmClient}
}

// Process implements the retrieval/generation stage of the pipeline.
//
// # Description
//
// Executes the selected strategy against the accessible set, folds history
// into the generation context bounded by the analyzer's window hint, and
// streams tokens through emit.
//
// # Outputs
//
//   - *Answer: The streamed answer. Nil with nil error means a retrieval
//     miss: retrieval ran cleanly and found nothing usable, and the caller
//     falls back. Never conflated with an error.
//   - error: *CanceledError on caller abort (checked before and during every
//     expensive stage), ErrNoAccessibleDocuments on an empty allow-list,
//     *OrchestratorError on any unexpected failure.
func (o *Orchestrator) Process(ctx context.Context, req Request, tracker *session.MetadataTracker,
	emit TokenEmitter) (*Answer, error) {

	ctx, span := tracer.Start(ctx, "Orchestrator.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.strategy", string(req.Selection.Strategy)),
		attribute.Int("pipeline.accessible_docs", len(req.AccessibleDocuments)),
	)

	if tracker == nil {
		tracker = session.NewMetadataTracker(nil, "", req.DataroomID, "")
	}
	if len(req.AccessibleDocuments) == 0 {
		return nil, ErrNoAccessibleDocuments
	}
	if err := ctx.Err(); err != nil {
		return nil, &CanceledError{Stage: string(StateRetrieving), Err: err}
	}

	// ====== Retrieval ======

	retrieveStart := time.Now()
	chunks, degraded, err := o.retrieve(ctx, req)
	tracker.RecordStageLatency("retrieval", time.Since(retrieveStart))
	if err != nil {
		if IsCanceled(err) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, &OrchestratorError{Stage: string(StateRetrieving), Err: err}
	}
	if len(chunks) == 0 {
		// Retrieval miss: a clean nil, not an error.
		slog.Info("retrieval produced no usable context",
			"dataroomId", req.DataroomID,
			"strategy", req.Selection.Strategy,
		)
		return nil, nil
	}
	span.SetAttributes(attribute.Int("pipeline.chunks", len(chunks)))

	// ====== Generation ======

	if err := ctx.Err(); err != nil {
		return nil, &CanceledError{Stage: string(StateGenerating), Err: err}
	}

	messages := o.buildMessages(req, chunks)
	sources := collectSources(chunks)

	if req.OnSources != nil {
		if err := req.OnSources(sources); err != nil {
			if IsCanceled(err) || ctx.Err() != nil {
				return nil, &CanceledError{Stage: string(StateStreaming), Err: err}
			}
			return nil, &OrchestratorError{Stage: string(StateStreaming), Err: err}
		}
	}

	var builder strings.Builder
	generateStart := time.Now()
	streamErr := o.llmClient.ChatStream(ctx, messages, llm.GenerationParams{}, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken {
			return nil
		}
		builder.WriteString(event.Content)
		return emit(event.Content)
	})
	tracker.RecordStageLatency("generation", time.Since(generateStart))

	if streamErr != nil {
		if IsCanceled(streamErr) || ctx.Err() != nil {
			return nil, &CanceledError{Stage: string(StateStreaming), Err: streamErr}
		}
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "generation failed")
		return nil, &OrchestratorError{Stage: string(StateGenerating), Err: streamErr}
	}

	return &Answer{
		Text:     builder.String(),
		Sources:  sources,
		Degraded: degraded,
	}, nil
}

// ====== Retrieval plans ======

// retrieve executes the strategy's plan. The bool result reports partial
// degradation: some passes failed but usable context was still produced.
func (o *Orchestrator) retrieve(ctx context.Context, req Request) ([]retrieval.Chunk, bool, error) {
	scope := retrieval.Scope{
		DataroomID:         req.DataroomID,
		AllowedDocumentIDs: documentIDs(req.AccessibleDocuments),
	}

	switch req.Selection.Strategy {
	case strategy.SinglePassLexical:
		chunks, err := o.retriever.Lexical(ctx, scope, req.SanitizedQuery, chunkLimit)
		return chunks, false, err

	case strategy.SinglePassSemantic:
		chunks, err := o.retriever.Semantic(ctx, scope, req.SanitizedQuery, chunkLimit)
		return chunks, false, err

	case strategy.PageTargeted:
		var pages []int
		if req.Analysis != nil && req.Analysis.Extraction != nil {
			pages = req.Analysis.Extraction.Pages
		}
		chunks, err := o.retriever.PageTargeted(ctx, scope, req.SanitizedQuery, pages, chunkLimit)
		return chunks, false, err

	case strategy.HybridMultiQuery:
		return o.retrieveMultiQuery(ctx, scope, req)

	case strategy.HydeExpanded:
		return o.retrieveHyde(ctx, scope, req)

	default:
		return nil, false, fmt.Errorf("unknown strategy %q", req.Selection.Strategy)
	}
}

// retrieveMultiQuery fans the query and its rewritten variants out over
// hybrid passes and merges the results.
//
// A variant pass failing is a degradation, not a failure, as long as at
// least one pass succeeds; cancellation always wins over degradation.
func (o *Orchestrator) retrieveMultiQuery(ctx context.Context, scope retrieval.Scope,
	req Request) ([]retrieval.Chunk, bool, error) {

	queries := []string{req.SanitizedQuery}
	if req.Analysis != nil && req.Analysis.Rewriting != nil {
		queries = append(queries, req.Analysis.Rewriting.Variants...)
	}

	resultSets := make([][]retrieval.Chunk, len(queries))
	passErrs := make([]error, len(queries))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(variantFanoutLimit)
	for i, q := range queries {
		g.Go(func() error {
			chunks, err := o.retriever.Hybrid(groupCtx, scope, q, chunkLimit)
			if err != nil {
				// Cancellation aborts the whole group; any other pass
				// failure is recorded and tolerated.
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				passErrs[i] = err
				return nil
			}
			resultSets[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, &CanceledError{Stage: string(StateRetrieving), Err: err}
	}

	failed := 0
	for _, err := range passErrs {
		if err != nil {
			failed++
			slog.Warn("variant retrieval pass failed", "error", err)
		}
	}
	if failed == len(queries) {
		return nil, false, fmt.Errorf("all %d retrieval passes failed: %w", failed, passErrs[0])
	}

	merged := retrieval.MergeChunks(resultSets, chunkLimit)
	return merged, failed > 0, nil
}

// retrieveHyde generates a hypothetical answer document and searches with
// its text. If the expansion generation fails, the pass degrades to a plain
// hybrid search on the original query.
func (o *Orchestrator) retrieveHyde(ctx context.Context, scope retrieval.Scope,
	req Request) ([]retrieval.Chunk, bool, error) {

	prompt := fmt.Sprintf(
		"Write a short, factual passage that would plausibly appear in a business document answering this question. Output only the passage.\n\nQuestion: %s",
		req.SanitizedQuery)

	hypothetical, err := o.llmClient.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		if IsCanceled(err) || ctx.Err() != nil {
			return nil, false, &CanceledError{Stage: string(StateRetrieving), Err: err}
		}
		slog.Warn("hypothetical-document expansion failed, degrading to hybrid search", "error", err)
		chunks, hybridErr := o.retriever.Hybrid(ctx, scope, req.SanitizedQuery, chunkLimit)
		return chunks, true, hybridErr
	}

	searchText := strings.TrimSpace(hypothetical)
	if searchText == "" {
		searchText = req.SanitizedQuery
	}
	chunks, err := o.retriever.Semantic(ctx, scope, searchText, chunkLimit)
	return chunks, false, err
}

// ====== Generation context ======

// buildMessages assembles the chat context: a grounding system message with
// the retrieved passages, history bounded by the analyzer's window hint,
// then the question itself.
func (o *Orchestrator) buildMessages(req Request, chunks []retrieval.Chunk) []datatypes.Message {
	var contextBlock strings.Builder
	contextBlock.WriteString("Answer using only the following document excerpts. Cite the document name when possible. If the excerpts do not contain the answer, say so.\n")
	for _, c := range chunks {
		fmt.Fprintf(&contextBlock, "\n[%s, page %d]\n%s\n", c.DocumentName, c.Page, c.Content)
	}

	messages := []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: contextBlock.String()},
	}
	messages = append(messages, o.boundedHistory(req)...)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: req.SanitizedQuery,
	})
	return messages
}

// boundedHistory folds prior turns into the context, newest kept, within the
// analyzer's context-window hint.
func (o *Orchestrator) boundedHistory(req Request) []datatypes.Message {
	if len(req.History) == 0 {
		return nil
	}

	budget := 4096 * approxBytesPerToken
	if req.Analysis != nil && req.Analysis.Rewriting != nil && req.Analysis.Rewriting.ContextWindowHint > 0 {
		budget = req.Analysis.Rewriting.ContextWindowHint * approxBytesPerToken
	}

	// Walk from the newest turn backwards until the budget runs out.
	kept := make([]datatypes.Message, 0, len(req.History))
	used := 0
	for i := len(req.History) - 1; i >= 0; i-- {
		turn := req.History[i]
		used += len(turn.Content)
		if used > budget {
			break
		}
		kept = append(kept, datatypes.Message{Role: turn.Role, Content: turn.Content})
	}

	// Reverse back to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// ====== Helpers ======

func documentIDs(docs []access.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.DocumentID)
	}
	return ids
}

// collectSources maps chunks to citation entries, one per document, keeping
// the best-scoring chunk's page.
func collectSources(chunks []retrieval.Chunk) []datatypes.SourceInfo {
	best := make(map[string]datatypes.SourceInfo)
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		existing, seen := best[c.DocumentID]
		if !seen {
			order = append(order, c.DocumentID)
		}
		if !seen || c.Score > existing.Score {
			best[c.DocumentID] = datatypes.SourceInfo{
				DocumentID: c.DocumentID,
				Name:       c.DocumentName,
				Page:       c.Page,
				Score:      c.Score,
			}
		}
	}

	sources := make([]datatypes.SourceInfo, 0, len(order))
	for _, id := range order {
		sources = append(sources, best[id])
	}
	return sources
}
