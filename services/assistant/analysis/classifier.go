// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed responses.yaml
var defaultResponsesYAML []byte

// responseTables is the on-disk shape of the classifier configuration.
type responseTables struct {
	Chitchat struct {
		Phrases   []string `yaml:"phrases"`
		Responses []string `yaml:"responses"`
	} `yaml:"chitchat"`
	GreetingResponse   string `yaml:"greeting_response"`
	ThanksResponse     string `yaml:"thanks_response"`
	CapabilityResponse string `yaml:"capability_response"`
	Abusive            struct {
		Phrases  []string `yaml:"phrases"`
		Response string   `yaml:"response"`
	} `yaml:"abusive"`
}

// Classifier labels queries and supplies pre-authored responses for
// non-informational ones. Responses are chosen from static tables, never
// generated, so they can be streamed without touching the corpus.
type Classifier struct {
	tables responseTables
}

// NewClassifier loads the classifier tables.
//
// # Description
//
// The embedded default tables are used unless DATAROOM_RESPONSES_PATH points
// at an override file. A broken override is an error; operators should not
// silently run with half-loaded abuse tables.
func NewClassifier() (*Classifier, error) {
	raw := defaultResponsesYAML
	if path := os.Getenv("DATAROOM_RESPONSES_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read responses file %s: %w", path, err)
		}
		slog.Info("Loaded classifier response tables", "path", path)
		raw = data
	}

	var tables responseTables
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response tables: %w", err)
	}
	if len(tables.Chitchat.Phrases) == 0 || tables.Abusive.Response == "" {
		return nil, fmt.Errorf("classifier response tables are incomplete")
	}
	return &Classifier{tables: tables}, nil
}

// Classify labels query and returns the canned response for
// non-informational labels (empty string for informational).
func (c *Classifier) Classify(query string) (Classification, string) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Trim(normalized, "!?.,:; ")

	for _, phrase := range c.tables.Abusive.Phrases {
		if strings.Contains(normalized, phrase) {
			return ClassAbusive, c.tables.Abusive.Response
		}
	}

	if resp := c.chitchatResponse(normalized); resp != "" {
		return ClassChitchat, resp
	}

	return ClassInformational, ""
}

// chitchatResponse returns a canned reply when the query is social filler.
// Matching is equality or prefix on short queries only; "hi, where is the
// indemnification clause?" must stay informational.
func (c *Classifier) chitchatResponse(normalized string) string {
	words := strings.Fields(normalized)
	if len(words) > 6 {
		return ""
	}
	for _, phrase := range c.tables.Chitchat.Phrases {
		if normalized == phrase {
			return c.pickChitchatResponse(phrase)
		}
	}
	// Prefix match only for very short queries ("thanks!", "ok then").
	if len(words) <= 3 {
		for _, phrase := range c.tables.Chitchat.Phrases {
			if strings.HasPrefix(normalized, phrase+" ") {
				return c.pickChitchatResponse(phrase)
			}
		}
	}
	return ""
}

// pickChitchatResponse maps a matched phrase to the most fitting canned reply.
func (c *Classifier) pickChitchatResponse(phrase string) string {
	switch {
	case strings.Contains(phrase, "thank") || phrase == "thx":
		return c.tables.ThanksResponse
	case strings.Contains(phrase, "who are you") || strings.Contains(phrase, "what can you do"):
		return c.tables.CapabilityResponse
	default:
		if c.tables.GreetingResponse != "" {
			return c.tables.GreetingResponse
		}
		return c.tables.Chitchat.Responses[0]
	}
}
