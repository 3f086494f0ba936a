// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"strings"
)

// SSEParser parses Server-Sent Events lines into StreamEvent structs.
//
// SSE format reference:
//
//	event: token\n
//	data: {"type":"token","content":"Hello",...}\n
//	\n
//
// The server names the event type both in the "event:" field and inside the
// JSON payload, so only data lines carry information for this parser. Empty
// lines are event delimiters and lines starting with ":" are comments
// (the server uses them as heartbeats); both are skipped.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The default
// implementation is stateless.
type SSEParser interface {
	// ParseLine parses a single line of SSE input. Returns (nil, nil) for
	// lines that carry no event: empty lines, comments and "event:" fields.
	ParseLine(line string) (*StreamEvent, error)
}

type sseParser struct{}

// NewSSEParser creates a stateless SSE parser.
func NewSSEParser() SSEParser {
	return &sseParser{}
}

// ParseLine parses a single SSE line. All server-assigned fields, including
// Id, CreatedAt and the hash chain links, are preserved verbatim so the
// chain can be verified after the stream completes.
func (p *sseParser) ParseLine(line string) (*StreamEvent, error) {
	line = strings.TrimSpace(line)

	if line == "" {
		return nil, nil
	}

	// Heartbeat comments.
	if strings.HasPrefix(line, ":") {
		return nil, nil
	}

	// The event name duplicates the JSON "type" field.
	if strings.HasPrefix(line, "event:") {
		return nil, nil
	}

	var jsonData string
	switch {
	case strings.HasPrefix(line, "data: "):
		jsonData = strings.TrimPrefix(line, "data: ")
	case strings.HasPrefix(line, "data:"):
		jsonData = strings.TrimPrefix(line, "data:")
	default:
		// Unknown SSE fields (id:, retry:) carry nothing we consume.
		return nil, nil
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

var _ SSEParser = (*sseParser)(nil)
