// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridocs/dataroom-qa/pkg/extensions"
	"github.com/veridocs/dataroom-qa/services/assistant/handlers"
	"github.com/veridocs/dataroom-qa/services/assistant/middleware"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
)

// Options carries the wired dependencies for route setup.
type Options struct {
	AskHandler   handlers.AskStreamingHandler
	Store        session.SessionStore
	AuthProvider extensions.AuthProvider
	RateLimiter  *middleware.RateLimiter
}

// SetupRoutes registers all endpoints on the router.
//
// # Description
//
// /health and /metrics are unauthenticated; everything under /v1 passes
// through viewer auth and the per-client rate limiter. Session admin routes
// are registered only when a store is configured, so a stateless deployment
// simply has no such endpoints.
func SetupRoutes(router *gin.Engine, opts Options) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.ViewerAuthMiddleware(opts.AuthProvider))
	if opts.RateLimiter != nil {
		v1.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}
	{
		datarooms := v1.Group("/datarooms")
		{
			datarooms.POST("/ask/stream", opts.AskHandler.HandleAskStream)

			if opts.Store != nil {
				datarooms.GET("/:dataroomId/sessions", handlers.ListSessions(opts.Store))
				sessions := datarooms.Group("/sessions")
				{
					sessions.GET("/:sessionId/history", handlers.GetSessionHistory(opts.Store))
					sessions.DELETE("/:sessionId", handlers.DeleteSession(opts.Store))
				}
			}
		}
	}
}
