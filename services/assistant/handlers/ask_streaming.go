// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/veridocs/dataroom-qa/services/assistant/access"
	"github.com/veridocs/dataroom-qa/services/assistant/analysis"
	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
	"github.com/veridocs/dataroom-qa/services/assistant/observability"
	"github.com/veridocs/dataroom-qa/services/assistant/pipeline"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
	"github.com/veridocs/dataroom-qa/services/assistant/strategy"
)

var tracer = otel.Tracer("dataroom.assistant.handlers")

// StatusClientClosedRequest is the non-standard status for a caller abort
// detected before the stream starts (nginx convention).
const StatusClientClosedRequest = 499

// heartbeatInterval paces SSE keepalive comments during long stages.
const heartbeatInterval = 15 * time.Second

// Default deadlines; override with DATAROOM_REQUEST_DEADLINE and
// DATAROOM_ANALYSIS_DEADLINE (Go duration strings).
const (
	defaultRequestDeadline  = 60 * time.Second
	defaultAnalysisDeadline = 10 * time.Second
)

// historyTurns bounds how much stored history is folded into generation.
const historyTurns = 20

// =============================================================================
// Configuration
// =============================================================================

// DeadlineConfig carries the two nested pipeline deadlines. Analysis is
// always strictly shorter than Request.
type DeadlineConfig struct {
	Request  time.Duration
	Analysis time.Duration
}

// LoadDeadlineConfig reads the deadlines from the environment, applying
// defaults and clamping the inner deadline strictly below the outer one.
func LoadDeadlineConfig() DeadlineConfig {
	cfg := DeadlineConfig{Request: defaultRequestDeadline, Analysis: defaultAnalysisDeadline}

	if raw := os.Getenv("DATAROOM_REQUEST_DEADLINE"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.Request = d
		} else {
			slog.Warn("Invalid DATAROOM_REQUEST_DEADLINE, using default",
				"value", raw, "default", defaultRequestDeadline)
		}
	}
	if raw := os.Getenv("DATAROOM_ANALYSIS_DEADLINE"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.Analysis = d
		} else {
			slog.Warn("Invalid DATAROOM_ANALYSIS_DEADLINE, using default",
				"value", raw, "default", defaultAnalysisDeadline)
		}
	}
	if cfg.Analysis >= cfg.Request {
		clamped := cfg.Request / 2
		slog.Warn("Analysis deadline must be strictly below the request deadline, clamping",
			"analysis", cfg.Analysis, "request", cfg.Request, "clamped", clamped)
		cfg.Analysis = clamped
	}
	return cfg
}

// =============================================================================
// Interface Definition
// =============================================================================

// QueryOrchestrator is the retrieval/generation stage consumed by the
// handler. Satisfied by *pipeline.Orchestrator; narrowed to an interface so
// tests can count invocations.
type QueryOrchestrator interface {
	Process(ctx context.Context, req pipeline.Request, tracker *session.MetadataTracker,
		emit pipeline.TokenEmitter) (*pipeline.Answer, error)
}

// AskStreamingHandler handles the data room question endpoint.
type AskStreamingHandler interface {
	// HandleAskStream processes POST /v1/datarooms/ask/stream.
	HandleAskStream(c *gin.Context)
}

// askStreamingHandler implements AskStreamingHandler.
type askStreamingHandler struct {
	analyzer     analysis.Analyzer
	resolver     access.AccessResolver
	orchestrator QueryOrchestrator
	store        session.SessionStore
	sink         session.TelemetrySink
	fallback     *FallbackResponder
	metrics      *observability.AskMetrics
	thresholds   strategy.Thresholds
	deadlines    DeadlineConfig
}

var _ AskStreamingHandler = (*askStreamingHandler)(nil)

// NewAskStreamingHandler creates the handler.
//
// # Description
//
// analyzer, resolver and orchestrator are hard dependencies; a nil there is
// a wiring bug and panics at startup. store, sink and metrics are optional:
// without a store the service runs stateless, without a sink telemetry is
// dropped, without metrics nothing is counted.
func NewAskStreamingHandler(
	analyzer analysis.Analyzer,
	resolver access.AccessResolver,
	orchestrator QueryOrchestrator,
	store session.SessionStore,
	sink session.TelemetrySink,
	metrics *observability.AskMetrics,
	thresholds strategy.Thresholds,
	deadlines DeadlineConfig,
) AskStreamingHandler {
	if analyzer == nil {
		panic("handlers: analyzer is required")
	}
	if resolver == nil {
		panic("handlers: access resolver is required")
	}
	if orchestrator == nil {
		panic("handlers: orchestrator is required")
	}
	return &askStreamingHandler{
		analyzer:     analyzer,
		resolver:     resolver,
		orchestrator: orchestrator,
		store:        store,
		sink:         sink,
		fallback:     NewFallbackResponder(metrics),
		metrics:      metrics,
		thresholds:   thresholds,
		deadlines:    deadlines,
	}
}

// =============================================================================
// Handler
// =============================================================================

// HandleAskStream implements the AskStreamingHandler interface.
//
// # Description
//
// Runs the full query pipeline for one question:
//
//	Step 1: Bind and validate the request (before any deadline starts).
//	Step 2: Start the outer deadline and the telemetry tracker.
//	Step 3: Ensure a session (best-effort, parallel with analysis).
//	Step 4: Analyze the query under the inner deadline.
//	Step 5: Short-circuit chitchat/abusive to a canned stream.
//	Step 6: Resolve accessible documents; empty set streams the access
//	        fallback, never an error status.
//	Step 7: Select the retrieval strategy.
//	Step 8: Open the SSE stream and orchestrate retrieval/generation.
//	Step 9: Terminal bookkeeping: turns, telemetry flush, metrics.
//
// Caller aborts return 499 before the stream starts and stop the stream
// silently after; they are never answered with an apology. A recover
// backstop guarantees no raw panic ever reaches the transport.
func (h *askStreamingHandler) HandleAskStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleAskStream")
	defer span.End()

	requestStart := time.Now()
	streamStarted := false

	// Pairs with the increment in startStream. Deferred so every terminal
	// path decrements exactly once, fallbacks and panics included.
	defer func() {
		if streamStarted && h.metrics != nil {
			h.metrics.ActiveStreams.Dec()
		}
	}()

	// Final backstop: never let a panic reach the transport layer.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in ask handler", "panic", r)
			span.SetStatus(codes.Error, "panic")
			if !streamStarted {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			if writer, err := NewSSEWriter(c.Writer); err == nil {
				h.fallback.Respond(writer, observability.ReasonInternal, "", nil)
			}
		}
	}()

	// Step 1: Bind and validate. InvalidQuery surfaces immediately, before
	// any deadline starts.
	var req datatypes.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("dataroom.id", req.DataroomID),
	)

	// Step 2: Outer deadline and tracker.
	ctx, cancel := context.WithTimeout(ctx, h.deadlines.Request)
	defer cancel()

	tracker := session.NewMetadataTracker(h.sink, req.RequestID, req.DataroomID, req.ViewerID)
	defer tracker.Flush(ctx)

	if err := ctx.Err(); err != nil {
		// Caller was already gone before any work started.
		h.finishAborted(c, tracker, "", false)
		return
	}

	// Step 3: Session ensure runs alongside analysis; its failure never
	// gates the pipeline.
	sessionCh := h.ensureSessionAsync(ctx, &req)

	// Step 4: Analysis under the inner deadline.
	analysisStart := time.Now()
	result, err := pipeline.RunStage(ctx, "analysis", h.deadlines.Analysis,
		func(stageCtx context.Context) (*analysis.QueryAnalysis, error) {
			return h.analyzer.Analyze(stageCtx, req.Query)
		})
	h.observeStage(tracker, "analysis", time.Since(analysisStart))

	sessionID := h.awaitSession(sessionCh)
	tracker.SetSessionID(sessionID)

	if err != nil {
		if pipeline.IsCanceled(err) {
			h.finishAborted(c, tracker, "", false)
			return
		}
		if pipeline.IsStageTimeout(err) {
			slog.Warn("analysis exceeded its deadline", "requestId", req.RequestID)
			writer, ok := h.startStream(c)
			if !ok {
				return
			}
			streamStarted = true
			h.fallback.Respond(writer, observability.ReasonAnalysisTimeout, sessionID, tracker)
			h.countRequest("", "fallback")
			return
		}
		// Analyzer errors on empty queries only; validation already
		// rejected those, so anything here is unexpected.
		slog.Error("analysis failed", "requestId", req.RequestID, "error", err)
		writer, ok := h.startStream(c)
		if !ok {
			return
		}
		streamStarted = true
		h.fallback.Respond(writer, observability.ReasonInternal, sessionID, tracker)
		h.countRequest("", "fallback")
		return
	}

	tracker.SetClassification(string(result.Classification))
	span.SetAttributes(attribute.String("analysis.classification", string(result.Classification)))

	h.appendTurnAsync(ctx, sessionID, datatypes.RoleUser, req.Query)

	// Step 5: Non-informational queries stream their canned response and
	// never touch access resolution or the corpus.
	if !result.IsInformational() {
		writer, ok := h.startStream(c)
		if !ok {
			return
		}
		streamStarted = true
		h.streamCanned(writer, result, sessionID, tracker)
		h.appendTurnAsync(ctx, sessionID, datatypes.RoleAssistant, result.Response)
		h.countRequest(string(result.Classification), "completed")
		return
	}

	// Step 6: Access resolution.
	accessStart := time.Now()
	docs, err := h.resolver.Resolve(ctx, access.Request{
		DataroomID:  req.DataroomID,
		ViewerID:    req.ViewerID,
		LinkID:      req.LinkID,
		DocumentIDs: req.DocumentIDs,
		FolderIDs:   req.FolderIDs,
	})
	h.observeStage(tracker, "access", time.Since(accessStart))

	if err != nil || len(docs) == 0 {
		if err != nil {
			if pipeline.IsCanceled(err) {
				h.finishAborted(c, tracker, sessionID, false)
				return
			}
			slog.Error("access resolution failed",
				"requestId", req.RequestID,
				"dataroomId", req.DataroomID,
				"error", err,
			)
		}
		// Empty accessible set and resolver failure both stream the
		// access-specific message with a success status: degradation,
		// never a server error. Never conflated with a retrieval miss.
		writer, ok := h.startStream(c)
		if !ok {
			return
		}
		streamStarted = true
		h.fallback.Respond(writer, observability.ReasonAccess, sessionID, tracker)
		h.countRequest(string(result.Classification), "fallback")
		return
	}
	span.SetAttributes(attribute.Int("access.document_count", len(docs)))

	// Step 7: Strategy selection (pure, sub-millisecond).
	selection := strategy.Select(strategy.InputsFromAnalysis(result, len(docs)), h.thresholds)
	tracker.SetStrategy(string(selection.Strategy), selection.Confidence)
	span.SetAttributes(
		attribute.String("strategy", string(selection.Strategy)),
		attribute.Float64("strategy.confidence", selection.Confidence),
	)
	if h.metrics != nil {
		h.metrics.StrategiesTotal.WithLabelValues(string(selection.Strategy)).Inc()
	}

	history := h.loadHistory(ctx, sessionID, req.Messages)

	// Cancellation check before the expensive stage: short-circuit with an
	// abort outcome instead of running the orchestrator and discarding it.
	if err := ctx.Err(); err != nil {
		h.finishAborted(c, tracker, sessionID, false)
		return
	}

	// Step 8: Open the stream and orchestrate.
	writer, ok := h.startStream(c)
	if !ok {
		return
	}
	streamStarted = true
	_ = writer.WriteStatus("Searching documents...")

	stopHeartbeat := h.startHeartbeat(ctx, writer)
	defer stopHeartbeat()

	var firstToken time.Time
	answer, err := h.orchestrator.Process(ctx, pipeline.Request{
		SanitizedQuery:      result.Sanitized,
		DataroomID:          req.DataroomID,
		AccessibleDocuments: docs,
		History:             history,
		Selection:           selection,
		Analysis:            result,
		SessionID:           sessionID,
		OnSources: func(sources []datatypes.SourceInfo) error {
			tracker.SetSourceCount(len(sources))
			return writer.WriteSources(sources)
		},
	}, tracker, func(token string) error {
		if firstToken.IsZero() {
			firstToken = time.Now()
			if h.metrics != nil {
				h.metrics.TimeToFirstTokenSeconds.Observe(time.Since(requestStart).Seconds())
			}
		}
		return writer.WriteToken(token)
	})
	stopHeartbeat()
	h.observeOrchestratorStages(tracker)

	// Step 9: Terminal bookkeeping.
	switch {
	case err == nil && answer == nil:
		// Retrieval miss: clean degradation, distinct from access failure.
		h.fallback.Respond(writer, observability.ReasonRetrievalMiss, sessionID, tracker)
		h.countRequest(string(result.Classification), "fallback")

	case err == nil:
		finalState := "completed"
		if answer.Degraded {
			finalState = "degraded"
		}
		_ = writer.WriteDone(sessionID)
		tracker.SetFinalState(finalState)
		h.appendTurnAsync(ctx, sessionID, datatypes.RoleAssistant, answer.Text)
		h.countRequest(string(result.Classification), finalState)
		h.observeStream(finalState, requestStart)

	case pipeline.IsCanceled(err):
		// Mid-stream abort: stop silently. No apology after an explicit
		// cancel, no error event to a connection that is already gone.
		h.finishAborted(c, tracker, sessionID, true)
		h.countRequest(string(result.Classification), "aborted")
		h.observeStream("aborted", requestStart)

	case errors.Is(err, pipeline.ErrNoAccessibleDocuments):
		h.fallback.Respond(writer, observability.ReasonAccess, sessionID, tracker)
		h.countRequest(string(result.Classification), "fallback")

	default:
		slog.Error("orchestrator failed",
			"requestId", req.RequestID,
			"strategy", selection.Strategy,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "orchestrator failed")
		h.fallback.Respond(writer, observability.ReasonInternal, sessionID, tracker)
		h.countRequest(string(result.Classification), "fallback")
	}
}

// =============================================================================
// Stream helpers
// =============================================================================

// startStream sets SSE headers and builds the writer. Increments the
// active-streams gauge; the matching decrement is deferred in
// HandleAskStream so it covers every terminal path.
func (h *askStreamingHandler) startStream(c *gin.Context) (SSEWriter, bool) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
	}
	return writer, true
}

// streamCanned streams a pre-authored classifier response.
func (h *askStreamingHandler) streamCanned(writer SSEWriter, result *analysis.QueryAnalysis,
	sessionID string, tracker *session.MetadataTracker) {

	if err := writer.WriteToken(result.Response); err != nil {
		slog.Warn("failed to stream canned response", "error", err)
		return
	}
	_ = writer.WriteDone(sessionID)
	tracker.SetFinalState("completed")
}

// finishAborted records a caller-initiated abort. Pre-stream aborts get the
// 499 status; mid-stream aborts leave the truncated stream as-is.
func (h *askStreamingHandler) finishAborted(c *gin.Context, tracker *session.MetadataTracker,
	sessionID string, midStream bool) {

	tracker.SetSessionID(sessionID)
	tracker.SetFinalState(string(pipeline.StateAborted))

	phase := "pre_stream"
	if midStream {
		phase = "mid_stream"
	} else {
		c.Status(StatusClientClosedRequest)
	}
	if h.metrics != nil {
		h.metrics.ClientDisconnectsTotal.WithLabelValues(phase).Inc()
	}
	slog.Info("request aborted by caller", "phase", phase, "sessionId", sessionID)
}

// startHeartbeat emits keepalive comments until stopped. Safe to stop twice.
func (h *askStreamingHandler) startHeartbeat(ctx context.Context, writer SSEWriter) func() {
	done := make(chan struct{})
	stopped := false

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
				if h.metrics != nil {
					h.metrics.KeepAlivesTotal.Inc()
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

// =============================================================================
// Best-effort session plumbing
// =============================================================================

// ensureSessionAsync creates (or passes through) the session in parallel
// with analysis. The result channel is buffered; the goroutine never blocks
// on a reader.
func (h *askStreamingHandler) ensureSessionAsync(ctx context.Context, req *datatypes.AskRequest) <-chan string {
	ch := make(chan string, 1)
	if req.SessionID != "" || h.store == nil {
		ch <- req.SessionID
		return ch
	}

	scope := req.Scope()
	go func() {
		id, err := h.store.CreateSession(ctx, scope)
		if err != nil {
			slog.Warn("session create failed, continuing stateless",
				"dataroomId", scope.DataroomID, "error", err)
			ch <- ""
			return
		}
		ch <- id
	}()
	return ch
}

// awaitSession collects the session ensure result without letting a slow
// store delay the pipeline.
func (h *askStreamingHandler) awaitSession(ch <-chan string) string {
	select {
	case id := <-ch:
		return id
	case <-time.After(500 * time.Millisecond):
		return ""
	}
}

// appendTurnAsync persists one turn detached from the request lifecycle.
func (h *askStreamingHandler) appendTurnAsync(ctx context.Context, sessionID, role, content string) {
	if h.store == nil || sessionID == "" || content == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		turnCtx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := h.store.AppendTurn(turnCtx, datatypes.SessionTurn{
			SessionID: sessionID,
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			slog.Warn("turn append failed", "sessionId", sessionID, "role", role, "error", err)
		}
	}()
}

// loadHistory merges stored history with request-supplied messages. Stored
// turns win on conflict; request messages serve stateless callers.
func (h *askStreamingHandler) loadHistory(ctx context.Context, sessionID string,
	messages []datatypes.Message) []datatypes.SessionTurn {

	if h.store != nil && sessionID != "" {
		turns, err := h.store.LoadHistory(ctx, sessionID, historyTurns)
		if err != nil {
			slog.Warn("history load failed, using request messages", "sessionId", sessionID, "error", err)
		} else if len(turns) > 0 {
			return turns
		}
	}

	turns := make([]datatypes.SessionTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, datatypes.SessionTurn{SessionID: sessionID, Role: m.Role, Content: m.Content})
	}
	return turns
}

// =============================================================================
// Metrics helpers
// =============================================================================

func (h *askStreamingHandler) observeStage(tracker *session.MetadataTracker, stage string, d time.Duration) {
	tracker.RecordStageLatency(stage, d)
	if h.metrics != nil {
		h.metrics.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// observeOrchestratorStages exports the retrieval and generation latencies
// the orchestrator recorded on the tracker, so the stage histogram carries
// all four pipeline stages, not just the two timed in this handler.
func (h *askStreamingHandler) observeOrchestratorStages(tracker *session.MetadataTracker) {
	if h.metrics == nil {
		return
	}
	latencies := tracker.Snapshot().StageLatencies
	for _, stage := range []string{"retrieval", "generation"} {
		if ms, ok := latencies[stage]; ok {
			h.metrics.StageDurationSeconds.WithLabelValues(stage).Observe(float64(ms) / 1000.0)
		}
	}
}

func (h *askStreamingHandler) observeStream(state string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.StreamDurationSeconds.WithLabelValues(state).Observe(time.Since(start).Seconds())
}

func (h *askStreamingHandler) countRequest(classification, state string) {
	if h.metrics == nil {
		return
	}
	if classification == "" {
		classification = "unknown"
	}
	h.metrics.RequestsTotal.WithLabelValues(classification, state).Inc()
}
