// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetRoomDocumentSchema defines the per-document access grant class. One
// object per document per data room; the viewer_ids and link_ids arrays are
// the grant lists access resolution filters on.
func GetRoomDocumentSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "RoomDocument",
		Description: "A data room document with its access grants.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "document_id",
				DataType:        []string{"text"},
				Description:     "Stable identifier of the document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "dataroom_id",
				DataType:        []string{"text"},
				Description:     "The data room this document belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "folder_id",
				DataType:        []string{"text"},
				Description:     "Folder containing the document, empty at root.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Display name of the document.",
				Tokenization: "word",
			},
			{
				Name:            "page_count",
				DataType:        []string{"int"},
				Description:     "Number of pages in the document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "viewer_ids",
				DataType:        []string{"text[]"},
				Description:     "Viewers granted access to this document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "link_ids",
				DataType:        []string{"text[]"},
				Description:     "Share links that expose this document.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetDocumentChunkSchema defines the retrieval unit: one page-anchored
// passage of document text. Vectors are supplied at ingest time.
func GetDocumentChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "DocumentChunk",
		Description: "A page-anchored passage of document text for retrieval.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The passage text.",
				Tokenization: "word",
			},
			{
				Name:            "document_id",
				DataType:        []string{"text"},
				Description:     "The document this passage belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "document_name",
				DataType:     []string{"text"},
				Description:  "Display name of the source document, for citations.",
				Tokenization: "word",
			},
			{
				Name:            "dataroom_id",
				DataType:        []string{"text"},
				Description:     "The data room the passage is scoped to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "page",
				DataType:        []string{"int"},
				Description:     "1-based page number the passage was extracted from.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetRoomSessionSchema defines the conversation thread class.
func GetRoomSessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "RoomSession",
		Description: "A conversation thread scoped to one viewer in one data room.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Unique identifier of the thread.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "dataroom_id",
				DataType:        []string{"text"},
				Description:     "The data room the thread belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "link_id",
				DataType:        []string{"text"},
				Description:     "Share link the viewer arrived through, empty for direct access.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "viewer_id",
				DataType:        []string{"text"},
				Description:     "The viewer who owns the thread.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the thread was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetRoomTurnSchema defines one persisted message within a session.
func GetRoomTurnSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "RoomTurn",
		Description: "One message within a conversation thread.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The thread this message belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "Either 'user' or 'assistant'.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The message text.",
				Tokenization: "word",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the message was recorded.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetRoomQueryRecordSchema defines the per-query telemetry record flushed
// after every answered (or degraded, or aborted) question.
func GetRoomQueryRecordSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "RoomQueryRecord",
		Description: "Telemetry for one processed question.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "request_id",
				DataType:        []string{"text"},
				Description:     "Correlation ID of the request.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Thread the question belonged to, if any.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "dataroom_id",
				DataType:        []string{"text"},
				Description:     "The data room that was queried.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "viewer_id",
				DataType:        []string{"text"},
				Description:     "The asking viewer.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "classification",
				DataType:        []string{"text"},
				Description:     "Query classification (informational, chitchat, abusive).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "strategy",
				DataType:        []string{"text"},
				Description:     "The search strategy that was selected.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "confidence",
				DataType:    []string{"number"},
				Description: "Selection confidence in [0.25, 1.0].",
			},
			{
				Name:            "final_state",
				DataType:        []string{"text"},
				Description:     "Terminal pipeline state (completed, aborted, degraded).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "fallback_reason",
				DataType:        []string{"text"},
				Description:     "Why a fallback answer was streamed, if one was.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "stage_latencies",
				DataType:    []string{"text"},
				Description: "JSON object of per-stage latencies in milliseconds.",
			},
			{
				Name:        "source_count",
				DataType:    []string{"int"},
				Description: "Number of documents cited in the answer.",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the record was flushed.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing classes at startup. Existing
// classes are left untouched.
func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetRoomDocumentSchema,
		GetDocumentChunkSchema,
		GetRoomSessionSchema,
		GetRoomTurnSchema,
		GetRoomQueryRecordSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// The client errors on a missing class; create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
