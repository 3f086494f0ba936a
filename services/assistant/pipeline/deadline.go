// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"time"
)

// stageResult carries a stage's outcome across the goroutine boundary.
type stageResult[T any] struct {
	value T
	err   error
}

// RunStage races fn against its own deadline and the caller's context.
//
// # Description
//
// fn runs in its own goroutine under a child context carrying the stage
// deadline. Whichever resolves first wins: the stage's completion, the stage
// deadline, or the caller's cancellation. The loser is abandoned, not merely
// ignored — the child context is canceled so a well-behaved fn stops working,
// and the result channel is buffered so the goroutine can always exit.
//
// # Outputs
//
//   - T: fn's result when it wins the race.
//   - error: fn's own error; *StageTimeoutError when the stage deadline
//     fires first; *CanceledError when the caller's context dies first.
func RunStage[T any](ctx context.Context, stage string, deadline time.Duration,
	fn func(ctx context.Context) (T, error)) (T, error) {

	var zero T

	stageCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make(chan stageResult[T], 1)
	go func() {
		value, err := fn(stageCtx)
		results <- stageResult[T]{value: value, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			// fn may surface the race outcomes itself as a context error.
			if ctx.Err() != nil {
				return zero, &CanceledError{Stage: stage, Err: ctx.Err()}
			}
			if stageCtx.Err() == context.DeadlineExceeded {
				return zero, &StageTimeoutError{Stage: stage}
			}
			return zero, res.err
		}
		return res.value, nil

	case <-stageCtx.Done():
		// The caller's cancellation also cancels stageCtx; check the parent
		// first so an abort is never misreported as a stage timeout.
		if ctx.Err() != nil {
			return zero, &CanceledError{Stage: stage, Err: ctx.Err()}
		}
		return zero, &StageTimeoutError{Stage: stage}
	}
}
