// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dataroom.assistant.retrieval")

// DocumentChunkClass is the Weaviate class holding indexed passages.
const DocumentChunkClass = "DocumentChunk"

// defaultLimit is used when the caller passes limit <= 0.
const defaultLimit = 8

// hybridAlpha balances keyword vs vector scoring in hybrid passes.
const hybridAlpha = 0.5

// WeaviateRetriever runs search passes against the DocumentChunk class.
type WeaviateRetriever struct {
	client *weaviate.Client
}

var _ Retriever = (*WeaviateRetriever)(nil)

// NewWeaviateRetriever creates a retriever. Panics on a nil client.
func NewWeaviateRetriever(client *weaviate.Client) *WeaviateRetriever {
	if client == nil {
		panic("retrieval: weaviate client is required")
	}
	return &WeaviateRetriever{client: client}
}

// chunkResponse is the typed shape of the GraphQL Get response.
type chunkResponse struct {
	Get struct {
		DocumentChunk []struct {
			DocumentID   string  `json:"document_id"`
			DocumentName string  `json:"document_name"`
			Page         float64 `json:"page"`
			Content      string  `json:"content"`
			Additional   struct {
				Score     string  `json:"score"`
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"DocumentChunk"`
	} `json:"Get"`
}

// Lexical implements the Retriever interface.
func (r *WeaviateRetriever) Lexical(ctx context.Context, scope Scope, query string, limit int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Lexical")
	defer span.End()

	bm25 := r.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("content")

	builder := r.baseQuery(scope, limit).WithBM25(bm25)
	return r.run(ctx, span, "lexical", scope, builder)
}

// Semantic implements the Retriever interface.
func (r *WeaviateRetriever) Semantic(ctx context.Context, scope Scope, text string, limit int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Semantic")
	defer span.End()

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{text})

	builder := r.baseQuery(scope, limit).WithNearText(nearText)
	return r.run(ctx, span, "semantic", scope, builder)
}

// Hybrid implements the Retriever interface.
func (r *WeaviateRetriever) Hybrid(ctx context.Context, scope Scope, query string, limit int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Hybrid")
	defer span.End()

	hybrid := r.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithAlpha(hybridAlpha)

	builder := r.baseQuery(scope, limit).WithHybrid(hybrid)
	return r.run(ctx, span, "hybrid", scope, builder)
}

// PageTargeted implements the Retriever interface.
//
// # Description
//
// Restricts a hybrid pass to the explicitly mentioned pages. The page filter
// is ANDed with the allow-list filter, never substituted for it.
func (r *WeaviateRetriever) PageTargeted(ctx context.Context, scope Scope, query string, pages []int, limit int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "Retriever.PageTargeted")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.page_count", len(pages)))

	if len(pages) == 0 {
		return nil, &RetrievalError{Mode: "page-targeted", Err: fmt.Errorf("no pages given")}
	}

	pageOperands := make([]*filters.WhereBuilder, 0, len(pages))
	for _, p := range pages {
		pageOperands = append(pageOperands, filters.Where().
			WithPath([]string{"page"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(p)))
	}
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			r.scopeFilter(scope),
			filters.Where().WithOperator(filters.Or).WithOperands(pageOperands),
		})

	hybrid := r.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithAlpha(hybridAlpha)

	builder := r.client.GraphQL().Get().
		WithClassName(DocumentChunkClass).
		WithFields(chunkFields()...).
		WithWhere(where).
		WithHybrid(hybrid).
		WithLimit(normalizeLimit(limit))

	return r.run(ctx, span, "page-targeted", scope, builder)
}

// ====== Query assembly ======

func chunkFields() []graphql.Field {
	return []graphql.Field{
		{Name: "document_id"},
		{Name: "document_name"},
		{Name: "page"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}, {Name: "certainty"}}},
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// scopeFilter builds the dataroom + allow-list filter applied to every pass.
func (r *WeaviateRetriever) scopeFilter(scope Scope) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"dataroom_id"}).
				WithOperator(filters.Equal).
				WithValueString(scope.DataroomID),
			filters.Where().
				WithPath([]string{"document_id"}).
				WithOperator(filters.ContainsAny).
				WithValueText(scope.AllowedDocumentIDs...),
		})
}

func (r *WeaviateRetriever) baseQuery(scope Scope, limit int) *graphql.GetBuilder {
	return r.client.GraphQL().Get().
		WithClassName(DocumentChunkClass).
		WithFields(chunkFields()...).
		WithWhere(r.scopeFilter(scope)).
		WithLimit(normalizeLimit(limit))
}

// run executes the query and parses, allow-list-checks and returns chunks.
func (r *WeaviateRetriever) run(ctx context.Context, span trace.Span, mode string, scope Scope,
	builder *graphql.GetBuilder) ([]Chunk, error) {

	if scope.DataroomID == "" {
		return nil, &RetrievalError{Mode: mode, Err: fmt.Errorf("dataroom is required")}
	}
	if len(scope.AllowedDocumentIDs) == 0 {
		return nil, &RetrievalError{Mode: mode, Err: fmt.Errorf("empty document allow-list")}
	}

	result, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, &RetrievalError{Mode: mode, Err: err}
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		span.RecordError(err)
		return nil, &RetrievalError{Mode: mode, Err: err}
	}

	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return nil, &RetrievalError{Mode: mode, Err: err}
	}
	var typed chunkResponse
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, &RetrievalError{Mode: mode, Err: err}
	}

	allowed := make(map[string]struct{}, len(scope.AllowedDocumentIDs))
	for _, id := range scope.AllowedDocumentIDs {
		allowed[id] = struct{}{}
	}

	chunks := make([]Chunk, 0, len(typed.Get.DocumentChunk))
	for _, c := range typed.Get.DocumentChunk {
		// Store-side filter already restricts to the allow-list; re-check
		// anyway so a mis-tagged index row cannot leak.
		if _, ok := allowed[c.DocumentID]; !ok {
			continue
		}
		score := c.Additional.Certainty
		if c.Additional.Score != "" {
			if s, err := strconv.ParseFloat(c.Additional.Score, 64); err == nil {
				score = s
			}
		}
		chunks = append(chunks, Chunk{
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Page:         int(c.Page),
			Content:      c.Content,
			Score:        score,
		})
	}

	span.SetAttributes(
		attribute.String("retrieval.mode", mode),
		attribute.Int("retrieval.chunk_count", len(chunks)),
	)
	return chunks, nil
}
