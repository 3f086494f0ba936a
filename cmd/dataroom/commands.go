// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dataroom",
	Short: "Ask questions about data room documents from the terminal",
	Long: `dataroom is the Veridocs command-line client.

It streams permission-filtered answers from the assistant service, lists and
inspects conversation threads, and verifies the integrity hash chain on every
answer stream it receives.`,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the documents in a data room",
	Long: `Streams an answer to a question, scoped to the documents the viewer can
see. Pass --session to continue an existing conversation thread.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk, // Defined in cmd_ask.go
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation threads",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the viewer's conversation threads in a data room",
	RunE:  runSessionsList, // Defined in cmd_sessions.go
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show the messages of a conversation thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsHistory, // Defined in cmd_sessions.go
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a conversation thread and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete, // Defined in cmd_sessions.go
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "", "Assistant service base URL")
	rootCmd.PersistentFlags().String("token", "", "Viewer bearer token")
	rootCmd.PersistentFlags().String("dataroom", "", "Data room ID")
	rootCmd.PersistentFlags().String("viewer", "", "Viewer ID")
	rootCmd.PersistentFlags().String("link", "", "Share link ID")

	askCmd.Flags().String("session", "", "Continue an existing conversation thread")
	askCmd.Flags().StringSlice("document", nil, "Restrict the answer to these document IDs")
	askCmd.Flags().StringSlice("folder", nil, "Restrict the answer to these folder IDs")
	askCmd.Flags().Bool("no-verify", false, "Skip hash chain verification of the answer stream")
	askCmd.Flags().Bool("quiet", false, "Print only the answer, no sources or integrity footer")

	sessionsHistoryCmd.Flags().Int("limit", 0, "Maximum number of messages to return")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionsCmd)
}
