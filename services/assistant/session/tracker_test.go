// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSink records flushed query records.
type mockSink struct {
	mu      sync.Mutex
	records []QueryRecord
	done    chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{done: make(chan struct{}, 10)}
}

func (m *mockSink) RecordQuery(_ context.Context, rec QueryRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *mockSink) recorded() []QueryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueryRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *mockSink) waitForFlush(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry flush did not happen")
	}
}

func TestTracker_AccumulatesAndFlushes(t *testing.T) {
	sink := newMockSink()
	tracker := NewMetadataTracker(sink, "req-1", "dr-1", "viewer-1")

	tracker.SetSessionID("sess-1")
	tracker.SetClassification("informational")
	tracker.SetStrategy("hybrid-multi-query", 0.7)
	tracker.RecordStageLatency("analysis", 42*time.Millisecond)
	tracker.SetFinalState("completed")
	tracker.SetSourceCount(3)

	tracker.Flush(context.Background())
	sink.waitForFlush(t)

	records := sink.recorded()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "hybrid-multi-query", rec.Strategy)
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Equal(t, "completed", rec.FinalState)
	assert.Equal(t, int64(42), rec.StageLatencies["analysis"])
	assert.Equal(t, 3, rec.SourceCount)
	assert.NotZero(t, rec.Timestamp)
}

func TestTracker_FlushIsIdempotent(t *testing.T) {
	sink := newMockSink()
	tracker := NewMetadataTracker(sink, "req-1", "dr-1", "viewer-1")

	tracker.Flush(context.Background())
	tracker.Flush(context.Background())
	tracker.Flush(context.Background())
	sink.waitForFlush(t)

	// Give any extra goroutines a moment to misbehave.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.recorded(), 1, "only the first Flush writes")
}

func TestTracker_FlushSurvivesCanceledContext(t *testing.T) {
	sink := newMockSink()
	tracker := NewMetadataTracker(sink, "req-1", "dr-1", "viewer-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tracker.Flush(ctx)
	sink.waitForFlush(t)

	assert.Len(t, sink.recorded(), 1, "telemetry must flush even after the request context died")
}

func TestTracker_NilSinkIsNoOp(t *testing.T) {
	tracker := NewMetadataTracker(nil, "req-1", "dr-1", "viewer-1")
	tracker.SetFinalState("completed")
	assert.NotPanics(t, func() {
		tracker.Flush(context.Background())
	})
}

func TestTracker_TimeStage(t *testing.T) {
	tracker := NewMetadataTracker(nil, "req-1", "dr-1", "viewer-1")

	err := tracker.TimeStage("retrieval", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	rec := tracker.Snapshot()
	assert.GreaterOrEqual(t, rec.StageLatencies["retrieval"], int64(10))
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewMetadataTracker(nil, "req-1", "dr-1", "viewer-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.RecordStageLatency("stage", time.Duration(n)*time.Millisecond)
			tracker.SetSourceCount(n)
			_ = tracker.Snapshot()
		}(i)
	}
	wg.Wait()
}
