// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Message roles for session turns. The asker is always "user"; everything
// the service emits is "assistant".
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// SessionScope identifies the conversation a session belongs to: the data
// room, the link the viewer arrived through (may be empty for direct access)
// and the viewer identity.
type SessionScope struct {
	DataroomID string `json:"dataroom_id"`
	LinkID     string `json:"link_id,omitempty"`
	ViewerID   string `json:"viewer_id"`
}

// ChatSession is the persisted conversation thread. Sessions are created at
// most once per thread and only ever appended to.
type ChatSession struct {
	SessionID string       `json:"session_id"`
	Scope     SessionScope `json:"scope"`
	CreatedAt int64        `json:"created_at"`
	TurnCount int          `json:"turn_count"`
}

// SessionTurn is one persisted message within a session.
type SessionTurn struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
