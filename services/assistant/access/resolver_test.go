// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package access

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &AccessError{DataroomID: "dr-1", ViewerID: "v-1", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.True(t, IsAccessError(err))
	assert.True(t, IsAccessError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsAccessError(inner))
	assert.Contains(t, err.Error(), "dr-1")
	assert.Contains(t, err.Error(), "v-1")
}

func TestNewWeaviateResolver_NilClientPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewWeaviateResolver(nil)
	})
}
