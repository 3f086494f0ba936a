// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"fmt"
	"strings"
)

// Context-window hints (in tokens) by complexity level. These size how much
// conversation history the orchestrator folds into generation.
const (
	contextWindowSmall  = 2048
	contextWindowMedium = 4096
	contextWindowLarge  = 8192
)

// PlanRewriting decides the expansion strategy for an informational query.
//
// # Description
//
// High complexity with low specificity (few concrete keywords) needs
// hypothetical-document expansion; high complexity with enough keywords gets
// multi-query variants; moderate complexity gets lexical broadening; simple
// queries pass through untouched. Variants come from template rules — the
// analyzer never calls an LLM, so it stays time-boxable.
func PlanRewriting(sanitized string, complexity ComplexityAnalysis, extraction QueryExtraction) QueryRewriting {
	hint := contextWindowSmall
	switch complexity.Level {
	case ComplexityModerate:
		hint = contextWindowMedium
	case ComplexityHigh:
		hint = contextWindowLarge
	}

	specific := len(extraction.Keywords) >= 3

	switch {
	case complexity.Level == ComplexityHigh && !specific:
		return QueryRewriting{
			Strategy:          ExpansionHyde,
			RequiresHyde:      true,
			ContextWindowHint: hint,
		}
	case complexity.Level == ComplexityHigh:
		return QueryRewriting{
			Strategy:          ExpansionMultiQuery,
			ContextWindowHint: hint,
			Variants:          multiQueryVariants(sanitized, extraction.Keywords),
		}
	case complexity.Level == ComplexityModerate:
		return QueryRewriting{
			Strategy:          ExpansionLexical,
			ContextWindowHint: hint,
			Variants:          lexicalVariants(sanitized, extraction.Keywords),
		}
	default:
		return QueryRewriting{
			Strategy:          ExpansionNone,
			ContextWindowHint: hint,
		}
	}
}

// multiQueryVariants produces reworded forms of the question for parallel
// retrieval. Template-based; duplicates of the original are skipped.
func multiQueryVariants(sanitized string, keywords []string) []string {
	variants := make([]string, 0, 3)
	if topic := strings.Join(firstN(keywords, 5), " "); topic != "" {
		variants = append(variants,
			topic,
			fmt.Sprintf("details about %s", topic),
		)
	}
	if stripped := stripQuestionFraming(sanitized); stripped != "" && stripped != sanitized {
		variants = append(variants, stripped)
	}
	return dedupeStrings(variants, sanitized)
}

// lexicalVariants produces a single keyword-focused variant for synonym-style
// broadening.
func lexicalVariants(sanitized string, keywords []string) []string {
	topic := strings.Join(firstN(keywords, 5), " ")
	if topic == "" {
		return nil
	}
	return dedupeStrings([]string{topic}, sanitized)
}

// stripQuestionFraming removes leading interrogative scaffolding ("what is
// the", "can you tell me") to leave the bare subject.
func stripQuestionFraming(q string) string {
	lower := strings.ToLower(q)
	prefixes := []string{
		"can you tell me ", "could you tell me ", "please tell me ",
		"what is the ", "what are the ", "what is ", "what are ",
		"where is the ", "where are the ", "where is ", "where are ",
		"how does the ", "how does ", "how do ",
		"tell me about ", "explain the ", "explain ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimRight(strings.TrimSpace(q[len(p):]), "?!. ")
		}
	}
	return strings.TrimRight(q, "?!. ")
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// dedupeStrings drops duplicates and any entry equal to original
// (case-insensitively).
func dedupeStrings(in []string, original string) []string {
	seen := map[string]struct{}{strings.ToLower(original): {}}
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
