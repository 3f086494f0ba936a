// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
)

// defaultHistoryLimit bounds GET /sessions/:sessionId/history when the caller
// does not supply ?limit=.
const defaultHistoryLimit = 50

// ListSessions returns the conversation threads for a data room scope.
//
// GET /v1/datarooms/:dataroomId/sessions?viewer_id=...&link_id=...
func ListSessions(store session.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := datatypes.SessionScope{
			DataroomID: c.Param("dataroomId"),
			ViewerID:   c.Query("viewer_id"),
			LinkID:     c.Query("link_id"),
		}
		if scope.DataroomID == "" || scope.ViewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dataroomId and viewer_id are required"})
			return
		}

		sessions, err := store.ListSessions(c.Request.Context(), scope)
		if err != nil {
			slog.Error("failed to list sessions", "dataroomId", scope.DataroomID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

// GetSessionHistory returns the turns of one thread, oldest first.
//
// GET /v1/datarooms/sessions/:sessionId/history?limit=N
func GetSessionHistory(store session.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}

		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		turns, err := store.LoadHistory(c.Request.Context(), sessionID, limit)
		if err != nil {
			slog.Error("failed to load session history", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "turns": turns})
	}
}

// DeleteSession removes a thread and all of its turns.
//
// DELETE /v1/datarooms/sessions/:sessionId
func DeleteSession(store session.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "sessionId", sessionID)

		if err := store.DeleteSession(c.Request.Context(), sessionID); err != nil {
			slog.Error("failed to delete session", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
