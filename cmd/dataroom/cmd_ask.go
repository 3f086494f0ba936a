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
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veridocs/dataroom-qa/pkg/ux"
)

// runAsk streams one answer to stdout. Status updates render as a spinner on
// stderr until the first token arrives; after the stream completes the cited
// sources and the hash chain verdict are printed.
func runAsk(cmd *cobra.Command, args []string) error {
	if config.DataroomID == "" {
		return fmt.Errorf("a data room is required: set --dataroom or dataroom_id in config.yaml")
	}
	if config.ViewerID == "" {
		return fmt.Errorf("a viewer identity is required: set --viewer or viewer_id in config.yaml")
	}

	sessionID, _ := cmd.Flags().GetString("session")
	documentIDs, _ := cmd.Flags().GetStringSlice("document")
	folderIDs, _ := cmd.Flags().GetStringSlice("folder")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	quiet, _ := cmd.Flags().GetBool("quiet")

	// Ctrl-C cancels the request context; the server sees the disconnect and
	// stops generating.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewAPIClient(config.APIURL, config.Token)
	body, err := client.AskStream(ctx, AskRequest{
		DataroomID:  config.DataroomID,
		ViewerID:    config.ViewerID,
		LinkID:      config.LinkID,
		SessionID:   sessionID,
		Query:       strings.Join(args, " "),
		DocumentIDs: documentIDs,
		FolderIDs:   folderIDs,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	result, err := consumeStream(ctx, body, cmd.OutOrStdout(), quiet)
	if err != nil {
		return err
	}

	if quiet {
		return nil
	}

	printSources(cmd.OutOrStdout(), result.Sources)
	if !noVerify {
		printVerification(cmd.OutOrStdout(), result.Events)
	}
	if result.SessionID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSession: %s\n", result.SessionID)
	}
	return nil
}

// consumeStream renders tokens as they arrive and aggregates the stream.
func consumeStream(ctx context.Context, body io.Reader, out io.Writer, quiet bool) (*ux.StreamResult, error) {
	var spinner *ux.Spinner
	stopSpinner := func() {
		if spinner != nil {
			spinner.Stop()
			spinner = nil
		}
	}
	defer stopSpinner()

	result := &ux.StreamResult{}
	var answer strings.Builder
	var serverErr string

	reader := ux.NewStreamReader()
	err := reader.Read(ctx, body, func(event *ux.StreamEvent) error {
		result.Events = append(result.Events, *event)
		result.TotalEvents++
		result.ChainHash = event.Hash

		switch event.Type {
		case ux.StreamEventStatus:
			if quiet {
				return nil
			}
			if spinner == nil {
				spinner = ux.NewSpinner(event.Message)
				spinner.Start()
			} else {
				spinner.UpdateMessage(event.Message)
			}
		case ux.StreamEventToken:
			stopSpinner()
			answer.WriteString(event.Content)
			fmt.Fprint(out, event.Content)
		case ux.StreamEventSources:
			result.Sources = event.Sources
		case ux.StreamEventDone:
			result.SessionID = event.SessionID
		case ux.StreamEventError:
			stopSpinner()
			serverErr = event.Error
		}
		return nil
	})
	stopSpinner()
	if err != nil {
		return nil, err
	}

	result.Answer = answer.String()
	if result.Answer != "" && !strings.HasSuffix(result.Answer, "\n") {
		fmt.Fprintln(out)
	}
	if serverErr != "" {
		return result, fmt.Errorf("server error: %s", serverErr)
	}
	return result, nil
}

func printSources(out io.Writer, sources []ux.SourceInfo) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, source := range sources {
		if source.Page > 0 {
			fmt.Fprintf(out, "  - %s (page %d)\n", source.Name, source.Page)
		} else {
			fmt.Fprintf(out, "  - %s\n", source.Name)
		}
	}
}

func printVerification(out io.Writer, events []ux.StreamEvent) {
	verification := ux.NewFullChainVerifier().Verify(events)
	if verification.Valid {
		fmt.Fprintf(out, "\nIntegrity: verified, %d events, chain %s\n",
			verification.ChainLength, shortHash(verification.FinalHash))
	} else {
		fmt.Fprintf(out, "\nIntegrity: FAILED - %s\n", verification.ErrorMessage)
	}
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
