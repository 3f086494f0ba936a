// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ====== Tie-break rules ======

func TestSelect_PageTargetedAlwaysWins(t *testing.T) {
	th := DefaultThresholds()

	// Explicit page mentions outrank every other signal: check at both
	// complexity extremes and with every other rule's trigger active.
	for _, score := range []float64{0.0, 0.5, 1.0} {
		sel := Select(Inputs{
			ComplexityScore: score,
			CorpusSize:      1000,
			Pages:           []int{12},
			RequiresHyde:    true,
			VariantCount:    3,
		}, th)
		assert.Equal(t, PageTargeted, sel.Strategy, "complexity %v", score)
		assert.Equal(t, 1.0, sel.Confidence, "first rule fired, nothing skipped")
	}
}

func TestSelect_LowComplexity(t *testing.T) {
	th := DefaultThresholds()

	small := Select(Inputs{ComplexityScore: 0.1, CorpusSize: 5}, th)
	assert.Equal(t, SinglePassLexical, small.Strategy)

	large := Select(Inputs{ComplexityScore: 0.1, CorpusSize: 500}, th)
	assert.Equal(t, SinglePassSemantic, large.Strategy)
}

func TestSelect_SmallCorpusBoundary(t *testing.T) {
	th := DefaultThresholds()

	at := Select(Inputs{ComplexityScore: 0.1, CorpusSize: th.SmallCorpusDocs}, th)
	assert.Equal(t, SinglePassLexical, at.Strategy, "boundary is inclusive")

	above := Select(Inputs{ComplexityScore: 0.1, CorpusSize: th.SmallCorpusDocs + 1}, th)
	assert.Equal(t, SinglePassSemantic, above.Strategy)
}

func TestSelect_HighComplexity(t *testing.T) {
	th := DefaultThresholds()

	sel := Select(Inputs{ComplexityScore: 0.8, CorpusSize: 100}, th)
	assert.Equal(t, HydeExpanded, sel.Strategy)
}

func TestSelect_RequiresHydeWithModerateScore(t *testing.T) {
	th := DefaultThresholds()

	sel := Select(Inputs{ComplexityScore: 0.5, CorpusSize: 100, RequiresHyde: true}, th)
	assert.Equal(t, HydeExpanded, sel.Strategy)
}

func TestSelect_ModerateWithVariants(t *testing.T) {
	th := DefaultThresholds()

	sel := Select(Inputs{ComplexityScore: 0.5, CorpusSize: 100, VariantCount: 2}, th)
	assert.Equal(t, HybridMultiQuery, sel.Strategy)
}

func TestSelect_DefaultFallback(t *testing.T) {
	th := DefaultThresholds()

	sel := Select(Inputs{ComplexityScore: 0.5, CorpusSize: 100}, th)
	assert.Equal(t, SinglePassSemantic, sel.Strategy)
	assert.Equal(t, 0.25, sel.Confidence, "all five rules skipped, confidence floored")
}

// ====== Confidence ======

func TestSelect_ConfidenceDecreasesWithSkippedRules(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name string
		in   Inputs
		want float64
	}{
		{"rule 1, 0 skipped", Inputs{Pages: []int{3}}, 1.0},
		{"rule 2, 1 skipped", Inputs{ComplexityScore: 0.1, CorpusSize: 5}, 0.85},
		{"rule 3, 2 skipped", Inputs{ComplexityScore: 0.1, CorpusSize: 500}, 0.70},
		{"rule 4, 3 skipped", Inputs{ComplexityScore: 0.9, CorpusSize: 500}, 0.55},
		{"rule 5, 4 skipped", Inputs{ComplexityScore: 0.5, CorpusSize: 500, VariantCount: 1}, 0.40},
		{"default, 5 skipped", Inputs{ComplexityScore: 0.5, CorpusSize: 500}, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := Select(tc.in, th)
			assert.InDelta(t, tc.want, sel.Confidence, 1e-9)
		})
	}
}

// ====== Determinism ======

func TestSelect_Deterministic(t *testing.T) {
	th := DefaultThresholds()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		in := Inputs{
			QueryLength:     rng.Intn(2000),
			ComplexityScore: rng.Float64(),
			CorpusSize:      rng.Intn(2000),
			RequiresHyde:    rng.Intn(2) == 0,
			VariantCount:    rng.Intn(4),
		}
		if rng.Intn(4) == 0 {
			in.Pages = []int{rng.Intn(100) + 1}
		}

		first := Select(in, th)
		for j := 0; j < 3; j++ {
			again := Select(in, th)
			assert.Equal(t, first, again, "inputs %+v", in)
		}

		assert.GreaterOrEqual(t, first.Confidence, 0.25)
		assert.LessOrEqual(t, first.Confidence, 1.0)
		assert.Contains(t, []SearchStrategy{
			SinglePassLexical, SinglePassSemantic, HybridMultiQuery, HydeExpanded, PageTargeted,
		}, first.Strategy)
	}
}

// ====== Thresholds ======

func TestLoadThresholds_Default(t *testing.T) {
	t.Setenv("DATAROOM_SELECTOR_PATH", "")
	th, err := LoadThresholds()
	assert.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	t.Setenv("DATAROOM_SELECTOR_PATH", "/nonexistent/path.yaml")
	_, err := LoadThresholds()
	assert.Error(t, err)
}
