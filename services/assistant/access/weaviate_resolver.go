// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("dataroom.assistant.access")

// RoomDocumentClass is the Weaviate class holding document grants.
const RoomDocumentClass = "RoomDocument"

// maxAccessibleDocuments bounds one resolution; a data room larger than this
// is paginated upstream before indexing.
const maxAccessibleDocuments = 10000

// WeaviateResolver resolves access grants from the RoomDocument class.
// Each object carries the document metadata plus the viewer and link IDs the
// document is shared with.
type WeaviateResolver struct {
	client *weaviate.Client
}

var _ AccessResolver = (*WeaviateResolver)(nil)

// NewWeaviateResolver creates a resolver. Panics on a nil client; the
// resolver is a hard dependency and a nil here is a wiring bug.
func NewWeaviateResolver(client *weaviate.Client) *WeaviateResolver {
	if client == nil {
		panic("access: weaviate client is required")
	}
	return &WeaviateResolver{client: client}
}

// roomDocumentResponse is the typed shape of the GraphQL Get response.
type roomDocumentResponse struct {
	Get struct {
		RoomDocument []struct {
			DocumentID string  `json:"document_id"`
			Name       string  `json:"name"`
			PageCount  float64 `json:"page_count"`
			FolderID   string  `json:"folder_id"`
		} `json:"RoomDocument"`
	} `json:"Get"`
}

// Resolve implements the AccessResolver interface.
func (r *WeaviateResolver) Resolve(ctx context.Context, req Request) ([]Document, error) {
	ctx, span := tracer.Start(ctx, "AccessResolver.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("dataroom.id", req.DataroomID),
		attribute.String("viewer.id", req.ViewerID),
	)

	if req.DataroomID == "" || req.ViewerID == "" {
		return nil, &AccessError{
			DataroomID: req.DataroomID,
			ViewerID:   req.ViewerID,
			Err:        fmt.Errorf("dataroom and viewer are required"),
		}
	}

	fields := []graphql.Field{
		{Name: "document_id"},
		{Name: "name"},
		{Name: "page_count"},
		{Name: "folder_id"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(RoomDocumentClass).
		WithFields(fields...).
		WithWhere(r.buildWhere(req)).
		WithLimit(maxAccessibleDocuments).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, &AccessError{DataroomID: req.DataroomID, ViewerID: req.ViewerID, Err: err}
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		span.RecordError(err)
		return nil, &AccessError{DataroomID: req.DataroomID, ViewerID: req.ViewerID, Err: err}
	}

	// Marshal to JSON and back for compile-time field safety.
	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return nil, &AccessError{DataroomID: req.DataroomID, ViewerID: req.ViewerID, Err: err}
	}
	var typed roomDocumentResponse
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, &AccessError{DataroomID: req.DataroomID, ViewerID: req.ViewerID, Err: err}
	}

	docs := make([]Document, 0, len(typed.Get.RoomDocument))
	for _, d := range typed.Get.RoomDocument {
		if d.DocumentID == "" {
			continue
		}
		docs = append(docs, Document{
			DocumentID: d.DocumentID,
			Name:       d.Name,
			PageCount:  int(d.PageCount),
			FolderID:   d.FolderID,
		})
	}

	span.SetAttributes(attribute.Int("access.document_count", len(docs)))
	slog.Debug("resolved accessible documents",
		"dataroomId", req.DataroomID,
		"viewerId", req.ViewerID,
		"count", len(docs),
	)
	return docs, nil
}

// buildWhere assembles the grant filter: dataroom + viewer grant, narrowed
// by link and any explicit subset.
func (r *WeaviateResolver) buildWhere(req Request) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"dataroom_id"}).
			WithOperator(filters.Equal).
			WithValueString(req.DataroomID),
		filters.Where().
			WithPath([]string{"viewer_ids"}).
			WithOperator(filters.ContainsAny).
			WithValueText(req.ViewerID),
	}
	if req.LinkID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"link_ids"}).
			WithOperator(filters.ContainsAny).
			WithValueText(req.LinkID))
	}
	if len(req.DocumentIDs) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"document_id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(req.DocumentIDs...))
	}
	if len(req.FolderIDs) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"folder_id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(req.FolderIDs...))
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}
