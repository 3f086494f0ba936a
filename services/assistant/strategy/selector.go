// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package strategy selects a retrieval strategy for an analyzed query.
//
// Selection is a pure function: no I/O, no randomness, sub-millisecond. The
// same inputs always produce the same (strategy, confidence) pair, which
// keeps every routing decision auditable after the fact.
package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veridocs/dataroom-qa/services/assistant/analysis"
)

// SearchStrategy is the closed set of retrieval strategies.
type SearchStrategy string

const (
	// SinglePassLexical is one BM25 keyword pass.
	SinglePassLexical SearchStrategy = "single-pass-lexical"
	// SinglePassSemantic is one vector similarity pass.
	SinglePassSemantic SearchStrategy = "single-pass-semantic"
	// HybridMultiQuery fans out rewritten variants over hybrid search and
	// merges the results.
	HybridMultiQuery SearchStrategy = "hybrid-multi-query"
	// HydeExpanded generates a hypothetical answer document and searches
	// with its embedding.
	HydeExpanded SearchStrategy = "hyde-expanded"
	// PageTargeted restricts retrieval to explicitly mentioned pages.
	PageTargeted SearchStrategy = "page-targeted"
)

// Selection is the selector's output.
type Selection struct {
	Strategy   SearchStrategy `json:"strategy"`
	Confidence float64        `json:"confidence"` // in [0,1]
}

// Thresholds are the tunable decision boundaries.
type Thresholds struct {
	// SmallCorpusDocs is the corpus size at or below which lexical search
	// over a small document set beats vector search.
	SmallCorpusDocs int `yaml:"small_corpus_docs"`
	// ComplexityLow is the exclusive upper bound of the low band.
	ComplexityLow float64 `yaml:"complexity_low"`
	// ComplexityHigh is the inclusive lower bound of the high band.
	ComplexityHigh float64 `yaml:"complexity_high"`
}

// DefaultThresholds returns the production decision boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SmallCorpusDocs: 25,
		ComplexityLow:   0.34,
		ComplexityHigh:  0.67,
	}
}

// LoadThresholds returns DefaultThresholds unless DATAROOM_SELECTOR_PATH
// points at a YAML override.
func LoadThresholds() (Thresholds, error) {
	th := DefaultThresholds()
	path := os.Getenv("DATAROOM_SELECTOR_PATH")
	if path == "" {
		return th, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("failed to read selector thresholds %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("failed to parse selector thresholds: %w", err)
	}
	if th.SmallCorpusDocs <= 0 || th.ComplexityLow <= 0 || th.ComplexityHigh <= th.ComplexityLow {
		return DefaultThresholds(), fmt.Errorf("selector thresholds out of order in %s", path)
	}
	return th, nil
}

// Inputs are the selector's arguments, bundled for readability at call sites.
type Inputs struct {
	QueryLength     int
	ComplexityScore float64
	CorpusSize      int
	Pages           []int
	RequiresHyde    bool
	VariantCount    int
}

// InputsFromAnalysis builds selector inputs from an informational analysis
// result and the accessible corpus size. The analysis must carry the
// informational sub-fields; callers short-circuit non-informational queries
// before selection.
func InputsFromAnalysis(a *analysis.QueryAnalysis, corpusSize int) Inputs {
	in := Inputs{
		QueryLength: len(a.Sanitized),
		CorpusSize:  corpusSize,
	}
	if a.Complexity != nil {
		in.ComplexityScore = a.Complexity.Score
	}
	if a.Extraction != nil {
		in.Pages = a.Extraction.Pages
	}
	if a.Rewriting != nil {
		in.RequiresHyde = a.Rewriting.RequiresHyde
		in.VariantCount = len(a.Rewriting.Variants)
	}
	return in
}

// Confidence decreases by this much per skipped tie-break rule.
const confidenceStepPenalty = 0.15

// Select picks the retrieval strategy for an analyzed query.
//
// # Description
//
// Rules are evaluated in a fixed order; the first that fires wins:
//
//  1. Explicit page numbers → PageTargeted. User intent is explicit, so this
//     outranks every other signal.
//  2. Low complexity + small corpus → SinglePassLexical.
//  3. Low complexity + large corpus → SinglePassSemantic.
//  4. High complexity or RequiresHyde → HydeExpanded.
//  5. Moderate complexity with rewritten variants → HybridMultiQuery.
//  6. Default → SinglePassSemantic.
//
// Confidence is 1 minus a fixed penalty per rule skipped before the winning
// rule, floored at 0.25 — an exact rule count, not a learned score, so the
// decision is auditable and directly testable.
func Select(in Inputs, th Thresholds) Selection {
	rules := []struct {
		fires    bool
		strategy SearchStrategy
	}{
		{len(in.Pages) > 0, PageTargeted},
		{in.ComplexityScore < th.ComplexityLow && in.CorpusSize <= th.SmallCorpusDocs, SinglePassLexical},
		{in.ComplexityScore < th.ComplexityLow, SinglePassSemantic},
		{in.ComplexityScore >= th.ComplexityHigh || in.RequiresHyde, HydeExpanded},
		{in.VariantCount > 0, HybridMultiQuery},
	}

	for skipped, rule := range rules {
		if rule.fires {
			return Selection{Strategy: rule.strategy, Confidence: confidenceFor(skipped)}
		}
	}
	return Selection{Strategy: SinglePassSemantic, Confidence: confidenceFor(len(rules))}
}

// confidenceFor maps a skipped-rule count to [0.25, 1].
func confidenceFor(skipped int) float64 {
	c := 1.0 - confidenceStepPenalty*float64(skipped)
	if c < 0.25 {
		c = 0.25
	}
	return c
}
