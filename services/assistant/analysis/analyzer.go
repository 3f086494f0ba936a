// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dataroom.assistant.analysis")

// Analyzer produces a QueryAnalysis for a raw query.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Analyzer interface {
	// Analyze classifies and dissects query. It returns an error only for
	// context cancellation or an empty query; classification itself cannot
	// fail.
	Analyze(ctx context.Context, query string) (*QueryAnalysis, error)
}

// ruleAnalyzer is the production Analyzer: rule tables and pure text
// computation, no I/O, so it completes well inside the analysis deadline.
type ruleAnalyzer struct {
	classifier *Classifier
}

// Compile-time interface check.
var _ Analyzer = (*ruleAnalyzer)(nil)

// NewAnalyzer creates the rule-based analyzer.
func NewAnalyzer() (Analyzer, error) {
	classifier, err := NewClassifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	return &ruleAnalyzer{classifier: classifier}, nil
}

// Analyze implements the Analyzer interface.
//
// # Description
//
// Runs classification first; chitchat/abusive queries return immediately with
// only Classification and Response set. Informational queries additionally get
// complexity, extraction, rewriting and a sanitized form. The context is
// checked between stages so a canceled request stops doing work promptly.
func (a *ruleAnalyzer) Analyze(ctx context.Context, query string) (*QueryAnalysis, error) {
	_, span := tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	classification, response := a.classifier.Classify(query)
	span.SetAttributes(attribute.String("analysis.classification", string(classification)))
	if classification != ClassInformational {
		return &QueryAnalysis{
			Classification: classification,
			Response:       response,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sanitized := Sanitize(query)
	if sanitized == "" {
		// The whole query was injection scaffolding; keep the original text
		// for retrieval rather than searching for nothing.
		sanitized = strings.TrimSpace(query)
	}
	complexity := ScoreComplexity(sanitized)
	extraction := QueryExtraction{
		Keywords: ExtractKeywords(sanitized),
		Pages:    ExtractPages(sanitized),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rewriting := PlanRewriting(sanitized, complexity, extraction)

	span.SetAttributes(
		attribute.Float64("analysis.complexity_score", complexity.Score),
		attribute.Int("analysis.keyword_count", len(extraction.Keywords)),
		attribute.Int("analysis.page_count", len(extraction.Pages)),
		attribute.String("analysis.expansion", string(rewriting.Strategy)),
	)

	return &QueryAnalysis{
		Classification: classification,
		Complexity:     &complexity,
		Extraction:     &extraction,
		Rewriting:      &rewriting,
		Sanitized:      sanitized,
	}, nil
}
