// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"

	"github.com/veridocs/dataroom-qa/services/assistant/observability"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
)

// Reason-keyed fallback messages. Human-readable, never internal detail.
var fallbackMessages = map[observability.FallbackReason]string{
	observability.ReasonAnalysisTimeout: "I couldn't analyze that question in time. Try rephrasing it more simply, or break it into smaller questions.",
	observability.ReasonAccess:          "There are no documents available to you in this data room right now. If you believe this is an error, contact the person who shared it with you.",
	observability.ReasonRetrievalMiss:   "I wasn't able to find anything in the available documents to answer that. Try rewording the question or asking about a specific document.",
	observability.ReasonInternal:        "Something went wrong while answering your question. Please try again in a moment.",
}

// FallbackResponder streams a degraded-but-responsive answer.
//
// # Description
//
// Used when the pipeline cannot produce a real answer: empty accessible set,
// analyzer timeout, retrieval miss, or any unexpected failure. It has no
// external dependency that can fail in a way that blocks the response. The
// user-cancellation codepath never comes here; cancellations get a transport
// abort, not an apology.
type FallbackResponder struct {
	metrics *observability.AskMetrics
}

// NewFallbackResponder creates a responder. metrics may be nil in tests.
func NewFallbackResponder(metrics *observability.AskMetrics) *FallbackResponder {
	return &FallbackResponder{metrics: metrics}
}

// Respond streams the reason's canned explanation and a done event.
//
// # Description
//
// Always succeeds from the caller's perspective: write errors mean the
// client is gone and are only logged. The tracker records the fallback
// reason and the degraded final state.
func (f *FallbackResponder) Respond(writer SSEWriter, reason observability.FallbackReason,
	sessionID string, tracker *session.MetadataTracker) {

	message, ok := fallbackMessages[reason]
	if !ok {
		message = fallbackMessages[observability.ReasonInternal]
	}

	if tracker != nil {
		tracker.SetFallbackReason(string(reason))
		tracker.SetFinalState("degraded")
	}
	if f.metrics != nil {
		f.metrics.FallbacksTotal.WithLabelValues(string(reason)).Inc()
	}

	if err := writer.WriteToken(message); err != nil {
		slog.Warn("failed to write fallback message", "reason", reason, "error", err)
		return
	}
	if err := writer.WriteDone(sessionID); err != nil {
		slog.Warn("failed to write fallback done event", "reason", reason, "error", err)
	}
}
