// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis implements the query analyzer: classification, complexity
// scoring, keyword/page extraction, rewrite planning and sanitization.
//
// The analyzer is deliberately dependency-free (no LLM, no network) so it can
// run under a tight deadline; everything here is pure computation over the
// query text.
package analysis

// Classification labels for an incoming query.
type Classification string

const (
	// ClassInformational marks a genuine question about the document corpus.
	ClassInformational Classification = "informational"
	// ClassChitchat marks greetings, thanks and other social filler.
	ClassChitchat Classification = "chitchat"
	// ClassAbusive marks hostile or clearly off-limits queries.
	ClassAbusive Classification = "abusive"
)

// Complexity levels derived from the numeric score.
type ComplexityLevel string

const (
	ComplexityLow      ComplexityLevel = "low"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityHigh     ComplexityLevel = "high"
)

// ExpansionStrategy tags how a query should be rewritten before retrieval.
type ExpansionStrategy string

const (
	ExpansionNone       ExpansionStrategy = "none"
	ExpansionLexical    ExpansionStrategy = "lexical"
	ExpansionMultiQuery ExpansionStrategy = "multi-query"
	ExpansionHyde       ExpansionStrategy = "hyde"
)

// ComplexityAnalysis scores how involved a question is.
type ComplexityAnalysis struct {
	WordCount int             `json:"word_count"`
	Score     float64         `json:"score"` // in [0,1]
	Level     ComplexityLevel `json:"level"`
}

// QueryExtraction holds structural hints pulled from the query text.
//
// Keywords is an ordered sequence: order reflects position in the query and
// duplicates of meaning may appear, but each token identity appears once.
// Pages is a set of positive page numbers, sorted ascending.
type QueryExtraction struct {
	Keywords []string `json:"keywords"`
	Pages    []int    `json:"pages"`
}

// QueryRewriting records the expansion plan for a query.
type QueryRewriting struct {
	Strategy          ExpansionStrategy `json:"strategy"`
	RequiresHyde      bool              `json:"requires_hyde"`
	ContextWindowHint int               `json:"context_window_hint"`
	Variants          []string          `json:"variants,omitempty"`
}

// QueryAnalysis is the analyzer's output.
//
// # Description
//
// Classification is always set. The remaining fields are populated only when
// Classification == ClassInformational; for chitchat/abusive queries the
// canned Response is set instead and the pipeline short-circuits.
type QueryAnalysis struct {
	Classification Classification      `json:"classification"`
	Response       string              `json:"response,omitempty"`
	Complexity     *ComplexityAnalysis `json:"complexity,omitempty"`
	Extraction     *QueryExtraction    `json:"extraction,omitempty"`
	Rewriting      *QueryRewriting     `json:"rewriting,omitempty"`
	Sanitized      string              `json:"sanitized,omitempty"`
}

// IsInformational reports whether the query should proceed to retrieval.
func (a *QueryAnalysis) IsInformational() bool {
	return a.Classification == ClassInformational
}
