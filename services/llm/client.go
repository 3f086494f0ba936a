// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides generation-provider clients for the assistant.
//
// Two backends are supported, selected via LLM_BACKEND_TYPE:
//   - "openai": hosted OpenAI-compatible API (openai_llm.go)
//   - "ollama": local Ollama server (ollama_llm.go)
//
// All blocking calls accept a context and must honor cancellation promptly;
// ChatStream implementations must release the underlying provider stream on
// every exit path, including mid-stream aborts.
package llm

import (
	"context"

	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
)

// GenerationParams carries per-call sampling options. Nil pointers mean
// "use the backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken carries one generated token (or token fragment).
	StreamEventToken StreamEventType = "token"
	// StreamEventDone signals normal end of generation.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is one unit of streamed generation output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
}

// StreamCallback is called for each event during streaming, in token order.
// Returning a non-nil error aborts the stream; the implementation must then
// close the provider stream and return the callback's error.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any generation backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; one client is shared by
// all in-flight requests.
type LLMClient interface {
	// Generate produces a single non-streamed completion for prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream streams a chat completion for messages, invoking callback
	// for every token. It returns ctx.Err() when the context is canceled
	// mid-stream, the callback's error when the callback aborts, or a
	// provider error otherwise.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}
