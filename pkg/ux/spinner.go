// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated progress indicator on the terminal while the
// server works through the pipeline before the first token arrives.
//
// # Thread Safety
//
// Safe for concurrent use. Start, UpdateMessage and Stop may be called from
// different goroutines; Stop is idempotent.
type Spinner struct {
	mu      sync.Mutex
	writer  io.Writer
	message string
	done    chan struct{}
	stopped bool
}

// NewSpinner creates a spinner writing to stderr so the answer stream on
// stdout stays clean for piping.
func NewSpinner(message string) *Spinner {
	return &Spinner{writer: os.Stderr, message: message, done: make(chan struct{})}
}

// NewSpinnerWithWriter creates a spinner with a custom writer for testing.
func NewSpinnerWithWriter(w io.Writer, message string) *Spinner {
	return &Spinner{writer: w, message: message, done: make(chan struct{})}
}

// Start begins the animation on a background goroutine.
func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		frame := 0
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.writer, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
				s.mu.Unlock()
				frame++
			}
		}
	}()
}

// UpdateMessage replaces the displayed message, clearing the old line first
// in case the new message is shorter.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.writer, "\r%s\r", spaces(len(s.message)+2))
	s.message = message
}

// Stop halts the animation and clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Fprintf(s.writer, "\r%s\r", spaces(len(s.message)+2))
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
