// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// StreamReader consumes an SSE answer stream.
//
// # Description
//
// Reads lines from the response body, parses them into StreamEvents and
// either hands each event to a callback (Read) or aggregates the whole
// stream into a StreamResult (ReadAll). Consumption stops at the first
// terminal event or when the context is canceled.
//
// # Thread Safety
//
// A StreamReader must not be shared across concurrent Read calls.
type StreamReader interface {
	// Read consumes the stream, invoking callback for every parsed event.
	// Returns nil once a terminal event has been delivered or the stream
	// ends cleanly.
	Read(ctx context.Context, r io.Reader, callback StreamCallback) error

	// ReadAll consumes the stream and aggregates it. An error event makes
	// ReadAll return a non-nil error carrying the server's message.
	ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error)
}

type sseStreamReader struct {
	parser SSEParser
}

// NewStreamReader creates a StreamReader for SSE responses.
func NewStreamReader() StreamReader {
	return &sseStreamReader{parser: NewSSEParser()}
}

// Read implements the StreamReader interface.
func (s *sseStreamReader) Read(ctx context.Context, r io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(r)
	// Sources events for large answers can exceed the default 64KB line cap.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := s.parser.ParseLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("parse stream line: %w", err)
		}
		if event == nil {
			continue
		}

		if err := callback(event); err != nil {
			return err
		}
		if event.IsTerminal() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	// A clean EOF without a done event happens when the server stops
	// silently after a mid-stream disconnect; treat it as end of stream.
	return nil
}

// ReadAll implements the StreamReader interface.
func (s *sseStreamReader) ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error) {
	result := &StreamResult{}
	var answer strings.Builder
	var serverErr string

	err := s.Read(ctx, r, func(event *StreamEvent) error {
		result.Events = append(result.Events, *event)
		result.TotalEvents++
		result.ChainHash = event.Hash

		switch event.Type {
		case StreamEventToken:
			answer.WriteString(event.Content)
		case StreamEventSources:
			result.Sources = event.Sources
		case StreamEventDone:
			result.SessionID = event.SessionID
		case StreamEventError:
			serverErr = event.Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Answer = answer.String()
	if serverErr != "" {
		return result, fmt.Errorf("server error: %s", serverErr)
	}
	return result, nil
}

var _ StreamReader = (*sseStreamReader)(nil)
