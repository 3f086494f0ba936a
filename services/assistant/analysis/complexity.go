// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import "strings"

// Level thresholds over the [0,1] complexity score.
const (
	complexityLowCutoff  = 0.34
	complexityHighCutoff = 0.67
)

// Lexical signals that raise complexity: analytical question words,
// comparatives and multi-part connectors.
var (
	analyticalWords  = []string{"why", "how", "explain", "compare", "analyze", "analyse", "evaluate", "summarize", "summarise", "difference", "implications", "impact", "relationship"}
	comparativeWords = []string{"versus", "vs", "better", "worse", "higher", "lower", "more", "less", "between", "compared"}
	connectorWords   = []string{"and", "or", "also", "additionally", "furthermore", "both", "as well as"}
)

// ScoreComplexity scores a query's complexity from word count and lexical
// signals.
//
// # Description
//
// The score is a weighted blend: length contributes up to 0.4 (saturating at
// 30 words), analytical question words up to 0.3, comparative terms up to
// 0.15 and multi-part connectors up to 0.15. Deterministic and sub-millisecond.
func ScoreComplexity(query string) ComplexityAnalysis {
	words := strings.Fields(query)
	lower := strings.ToLower(query)

	lengthScore := float64(len(words)) / 30.0
	if lengthScore > 1.0 {
		lengthScore = 1.0
	}

	score := 0.4*lengthScore +
		0.3*signalScore(lower, analyticalWords, 2) +
		0.15*signalScore(lower, comparativeWords, 2) +
		0.15*signalScore(lower, connectorWords, 3)
	if score > 1.0 {
		score = 1.0
	}

	level := ComplexityModerate
	switch {
	case score < complexityLowCutoff:
		level = ComplexityLow
	case score >= complexityHighCutoff:
		level = ComplexityHigh
	}

	return ComplexityAnalysis{
		WordCount: len(words),
		Score:     score,
		Level:     level,
	}
}

// signalScore counts signal word hits, saturating at saturation hits.
func signalScore(lower string, signals []string, saturation int) float64 {
	hits := 0
	for _, s := range signals {
		if containsWord(lower, s) {
			hits++
		}
	}
	if hits > saturation {
		hits = saturation
	}
	return float64(hits) / float64(saturation)
}

// containsWord reports whether lower contains s as a whole word (or phrase).
func containsWord(lower, s string) bool {
	idx := strings.Index(lower, s)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(lower[idx-1])
		afterIdx := idx + len(s)
		after := afterIdx >= len(lower) || !isWordByte(lower[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(lower[idx+1:], s)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '\''
}
