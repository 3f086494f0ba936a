// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable authentication surface of the
// assistant service. The open-source build ships with a permissive no-op
// provider; hosted deployments inject real implementations that validate
// viewer tokens against the platform's identity service.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when token validation fails. Implementations
// should wrap it with context:
//
//	return nil, fmt.Errorf("token expired: %w", ErrUnauthorized)
//
// The auth middleware uses errors.Is against this sentinel to distinguish a
// bad credential from a provider outage.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes an authenticated viewer.
//
// # Fields
//
//   - UserID: Stable identifier of the viewer; also the rate-limit key.
//   - LinkID: Share link the token was minted for, empty for direct access.
//   - Roles: Role memberships for authorization decisions.
type AuthInfo struct {
	UserID string
	LinkID string
	Roles  []string
}

// HasRole reports whether the viewer holds the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; Validate runs on every
// request.
type AuthProvider interface {
	// Validate checks the token and returns the viewer it belongs to.
	// Returns an error wrapping ErrUnauthorized when the token is invalid
	// or expired; any other error signals a provider failure.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as a local admin viewer. Used in
// development and in single-tenant deployments that terminate auth at the
// proxy.
type NopAuthProvider struct{}

// Validate implements the AuthProvider interface.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

var _ AuthProvider = (*NopAuthProvider)(nil)
