// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer wraps bytes.Buffer for safe concurrent writes from the
// spinner's animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_WritesFrames(t *testing.T) {
	buf := &syncBuffer{}
	spinner := NewSpinnerWithWriter(buf, "Searching documents...")
	spinner.Start()

	assert.Eventually(t, func() bool {
		return len(buf.String()) > 0
	}, time.Second, 10*time.Millisecond)

	spinner.Stop()
	assert.Contains(t, buf.String(), "Searching documents...")
}

func TestSpinner_StopIsIdempotent(t *testing.T) {
	spinner := NewSpinnerWithWriter(&syncBuffer{}, "working")
	spinner.Start()
	spinner.Stop()
	// Second stop must not close the channel again.
	spinner.Stop()
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spinner := NewSpinnerWithWriter(&syncBuffer{}, "working")
	spinner.Stop()
}
