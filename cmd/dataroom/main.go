// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds the CLI configuration. Values are resolved in order of
// precedence: flags, environment, config.yaml, built-in defaults.
type Config struct {
	// APIURL is the base URL of the assistant service.
	APIURL string `yaml:"api_url"`

	// Token is the viewer bearer token sent on every request.
	Token string `yaml:"token"`

	// DataroomID is the default data room for commands that need one.
	DataroomID string `yaml:"dataroom_id"`

	// ViewerID is the default viewer identity.
	ViewerID string `yaml:"viewer_id"`

	// LinkID is the share link the viewer arrived through, if any.
	LinkID string `yaml:"link_id"`
}

var config Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// config.yaml is optional; flags and environment alone are enough.
		if yamlFile, err := os.ReadFile("config.yaml"); err == nil {
			if err := yaml.Unmarshal(yamlFile, &config); err != nil {
				log.Fatalf("Error parsing config.yaml: %v", err)
			}
		}

		if v := os.Getenv("DATAROOM_API_URL"); v != "" {
			config.APIURL = v
		}
		if v := os.Getenv("DATAROOM_API_TOKEN"); v != "" {
			config.Token = v
		}

		applyFlagOverrides(cmd)

		if config.APIURL == "" {
			config.APIURL = "http://localhost:12310"
		}
	}
}

// applyFlagOverrides copies explicitly set persistent flags over the loaded
// configuration.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("api-url") {
		config.APIURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("token") {
		config.Token, _ = flags.GetString("token")
	}
	if flags.Changed("dataroom") {
		config.DataroomID, _ = flags.GetString("dataroom")
	}
	if flags.Changed("viewer") {
		config.ViewerID, _ = flags.GetString("viewer")
	}
	if flags.Changed("link") {
		config.LinkID, _ = flags.GetString("link")
	}
}
