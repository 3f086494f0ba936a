// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const sessionCommandTimeout = 15 * time.Second

func runSessionsList(cmd *cobra.Command, args []string) error {
	if config.DataroomID == "" || config.ViewerID == "" {
		return fmt.Errorf("--dataroom and --viewer are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionCommandTimeout)
	defer cancel()

	client := NewAPIClient(config.APIURL, config.Token)
	sessions, err := client.ListSessions(ctx, config.DataroomID, config.ViewerID, config.LinkID)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversation threads found.")
		return nil
	}

	for _, s := range sessions {
		created := time.UnixMilli(s.CreatedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d messages\n", s.SessionID, created, s.TurnCount)
	}
	return nil
}

func runSessionsHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(context.Background(), sessionCommandTimeout)
	defer cancel()

	client := NewAPIClient(config.APIURL, config.Token)
	turns, err := client.GetSessionHistory(ctx, args[0], limit)
	if err != nil {
		return err
	}

	if len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No messages in this thread.")
		return nil
	}

	for _, turn := range turns {
		when := time.UnixMilli(turn.Timestamp).Format("15:04:05")
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", when, turn.Role, turn.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCommandTimeout)
	defer cancel()

	client := NewAPIClient(config.APIURL, config.Token)
	if err := client.DeleteSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
	return nil
}
