// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{UserID: "viewer-1", Roles: []string{"viewer", "admin"}}

	assert.True(t, info.HasRole("admin"))
	assert.True(t, info.HasRole("viewer"))
	assert.False(t, info.HasRole("owner"))
	assert.False(t, (&AuthInfo{}).HasRole("admin"))
}

func TestNopAuthProvider(t *testing.T) {
	provider := &NopAuthProvider{}

	info, err := provider.Validate(context.Background(), "any-token")
	require.NoError(t, err)
	assert.Equal(t, "local-user", info.UserID)
	assert.True(t, info.HasRole("admin"))
}

func TestErrUnauthorized_Wrapping(t *testing.T) {
	err := fmt.Errorf("token expired: %w", ErrUnauthorized)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
