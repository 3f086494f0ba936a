// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

// State tracks a request through the pipeline. Terminal states are
// StateCompleted, StateAborted and StateDegraded.
type State string

const (
	StatePending          State = "pending"
	StateAnalyzingContext State = "analyzing-context"
	StateRetrieving       State = "retrieving"
	StateGenerating       State = "generating"
	StateStreaming        State = "streaming"
	StateCompleted        State = "completed"
	StateAborted          State = "aborted"
	StateDegraded         State = "degraded"
)
