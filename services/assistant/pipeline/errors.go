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
)

// ErrNoAccessibleDocuments is returned when the orchestrator is invoked with
// an empty accessible-document set. This is an access/config condition, never
// a retrieval failure, and routes to the access-specific fallback message.
var ErrNoAccessibleDocuments = errors.New("no accessible documents in scope")

// CanceledError is the tagged cancellation variant.
//
// # Description
//
// Caller-initiated aborts must be distinguishable from failures at every
// catch site: a cancellation dictates a silent abort response, a failure an
// apologetic fallback. The distinction is made with errors.As/errors.Is on
// this type, never by matching message strings. CanceledError also satisfies
// errors.Is(err, context.Canceled) via Unwrap.
type CanceledError struct {
	// Stage names where the abort landed (e.g. "analysis", "generating").
	Stage string
	Err   error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("request canceled during %s: %v", e.Stage, e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

// IsCanceled reports whether err represents a caller-initiated abort,
// whether tagged or a bare context.Canceled from deep in a client library.
func IsCanceled(err error) bool {
	var canceled *CanceledError
	if errors.As(err, &canceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// StageTimeoutError reports a stage that exceeded its own deadline while the
// overall request deadline had not elapsed.
type StageTimeoutError struct {
	Stage string
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s exceeded its deadline", e.Stage)
}

// IsStageTimeout reports whether err is a StageTimeoutError.
func IsStageTimeout(err error) bool {
	var timeout *StageTimeoutError
	return errors.As(err, &timeout)
}

// OrchestratorError wraps an unexpected failure inside retrieval or
// generation. Full context is logged server-side; callers only ever see a
// generic apology.
type OrchestratorError struct {
	Stage string
	Err   error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("orchestrator failed during %s: %v", e.Stage, e.Err)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// IsOrchestratorError reports whether err is an OrchestratorError.
func IsOrchestratorError(err error) bool {
	var orchErr *OrchestratorError
	return errors.As(err, &orchErr)
}
