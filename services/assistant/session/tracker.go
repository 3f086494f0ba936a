// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushTimeout bounds the detached telemetry write.
const flushTimeout = 5 * time.Second

// MetadataTracker accumulates per-query telemetry for one request.
//
// # Description
//
// The pipeline records what happened (strategy, stage latencies, final state,
// fallback reason) as it goes; Flush writes the record in a detached
// goroutine after the response so telemetry can never delay or fail an
// answer. Flush is idempotent: only the first call writes.
//
// # Thread Safety
//
// Safe for concurrent use; the streaming goroutine and the handler both
// touch it.
type MetadataTracker struct {
	mu      sync.Mutex
	rec     QueryRecord
	flushed bool
	sink    TelemetrySink
}

// NewMetadataTracker creates a tracker for one request. A nil sink is
// allowed; the tracker then accumulates but Flush is a no-op.
func NewMetadataTracker(sink TelemetrySink, requestID, dataroomID, viewerID string) *MetadataTracker {
	return &MetadataTracker{
		sink: sink,
		rec: QueryRecord{
			RequestID:      requestID,
			DataroomID:     dataroomID,
			ViewerID:       viewerID,
			StageLatencies: make(map[string]int64),
		},
	}
}

// SetSessionID records the session the query ran under.
func (t *MetadataTracker) SetSessionID(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.SessionID = sessionID
}

// SetClassification records the analyzer's label.
func (t *MetadataTracker) SetClassification(classification string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.Classification = classification
}

// SetStrategy records the selected strategy and its confidence.
func (t *MetadataTracker) SetStrategy(strategy string, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.Strategy = strategy
	t.rec.Confidence = confidence
}

// SetFinalState records the pipeline's terminal state.
func (t *MetadataTracker) SetFinalState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.FinalState = state
}

// SetFallbackReason records why the fallback responder ran.
func (t *MetadataTracker) SetFallbackReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.FallbackReason = reason
}

// SetSourceCount records how many documents were cited.
func (t *MetadataTracker) SetSourceCount(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.SourceCount = n
}

// RecordStageLatency records one stage's duration.
func (t *MetadataTracker) RecordStageLatency(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.StageLatencies[stage] = d.Milliseconds()
}

// TimeStage runs fn and records its duration under stage.
func (t *MetadataTracker) TimeStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.RecordStageLatency(stage, time.Since(start))
	return err
}

// Snapshot returns a copy of the accumulated record.
func (t *MetadataTracker) Snapshot() QueryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.rec
	rec.StageLatencies = make(map[string]int64, len(t.rec.StageLatencies))
	for k, v := range t.rec.StageLatencies {
		rec.StageLatencies[k] = v
	}
	return rec
}

// Flush writes the record detached from the request lifecycle.
//
// # Description
//
// The write runs in its own goroutine under context.WithoutCancel, so a
// caller abort that killed the request context cannot cancel the telemetry
// write. Failures are logged and dropped.
func (t *MetadataTracker) Flush(ctx context.Context) {
	t.mu.Lock()
	if t.flushed || t.sink == nil {
		t.mu.Unlock()
		return
	}
	t.flushed = true
	rec := t.rec
	rec.StageLatencies = make(map[string]int64, len(t.rec.StageLatencies))
	for k, v := range t.rec.StageLatencies {
		rec.StageLatencies[k] = v
	}
	t.mu.Unlock()

	rec.Timestamp = time.Now().UnixMilli()
	detached := context.WithoutCancel(ctx)

	go func() {
		flushCtx, cancel := context.WithTimeout(detached, flushTimeout)
		defer cancel()
		if err := t.sink.RecordQuery(flushCtx, rec); err != nil {
			slog.Warn("Failed to flush query telemetry",
				"requestId", rec.RequestID,
				"error", err,
			)
		}
	}()
}
