// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package access resolves which documents a viewer may query.
//
// The accessible-document set is the pipeline's security boundary: retrieval
// is restricted to exactly the IDs the resolver returns, and nothing outside
// that set may ever influence an answer.
package access

import (
	"context"
	"errors"
	"fmt"
)

// Document is one indexed document the viewer can see. The resolver owns
// document metadata; the pipeline only holds these read references for the
// duration of one query.
type Document struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	PageCount  int    `json:"page_count"`
	FolderID   string `json:"folder_id,omitempty"`
}

// Request scopes a resolution: the data room, the viewer, the link the
// viewer arrived through (optional) and an optional explicit subset filter.
type Request struct {
	DataroomID  string
	ViewerID    string
	LinkID      string
	DocumentIDs []string
	FolderIDs   []string
}

// AccessError reports a failed access resolution. It is a pipeline failure
// kind (fallback: "no documents available"), never a transport error.
type AccessError struct {
	DataroomID string
	ViewerID   string
	Err        error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access resolution failed for viewer %s in dataroom %s: %v",
		e.ViewerID, e.DataroomID, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// IsAccessError reports whether err is an AccessError.
func IsAccessError(err error) bool {
	var accessErr *AccessError
	return errors.As(err, &accessErr)
}

// AccessResolver resolves the viewer's accessible document set.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AccessResolver interface {
	// Resolve returns every document req.ViewerID may query in
	// req.DataroomID, narrowed by link and explicit subset filters when
	// present. An empty result is not an error; it means the viewer can see
	// nothing and the pipeline degrades to a fallback answer.
	Resolve(ctx context.Context, req Request) ([]Document, error)
}
