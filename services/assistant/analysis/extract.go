// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// stopwords filtered out of keyword extraction. Deliberately small; keyword
// recall matters more than precision for lexical retrieval.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "do": {}, "does": {}, "did": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "from": {},
	"and": {}, "or": {}, "but": {}, "if": {}, "then": {}, "than": {}, "that": {},
	"this": {}, "these": {}, "those": {}, "it": {}, "its": {}, "as": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {}, "where": {},
	"when": {}, "why": {}, "how": {}, "can": {}, "could": {}, "would": {},
	"should": {}, "will": {}, "shall": {}, "may": {}, "might": {}, "me": {},
	"my": {}, "our": {}, "your": {}, "you": {}, "we": {}, "i": {}, "us": {},
	"please": {}, "tell": {}, "about": {}, "there": {}, "any": {}, "all": {},
}

// Page mention patterns: "page 12", "p. 7", "pg 3-5", "pages 4 and 9",
// "pages 2, 3 and 4". The list group is parsed separately.
var (
	pageListPattern = regexp.MustCompile(`(?i)\b(?:pages?|pg\.?|p\.)\s*((?:\d+\s*(?:-|–|through|to)\s*\d+|\d+)(?:\s*(?:,|and|&)\s*(?:\d+\s*(?:-|–|through|to)\s*\d+|\d+))*)`)
	pageRangePattern = regexp.MustCompile(`(\d+)\s*(?:-|–|through|to)\s*(\d+)`)
	pageNumPattern   = regexp.MustCompile(`\d+`)
	tokenPattern     = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9'\-]*`)
)

// ExtractKeywords returns the query's content words in order of appearance.
// Each token identity appears once; stopwords and bare numbers are dropped.
func ExtractKeywords(query string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// ExtractPages returns the set of page numbers literally mentioned in the
// query, sorted ascending. Ranges expand ("pg. 3-5" yields 3,4,5); ranges
// wider than 100 pages are ignored as noise.
func ExtractPages(query string) []int {
	set := make(map[int]struct{})
	for _, match := range pageListPattern.FindAllStringSubmatch(query, -1) {
		list := match[1]
		for _, rng := range pageRangePattern.FindAllStringSubmatch(list, -1) {
			lo, err1 := strconv.Atoi(rng[1])
			hi, err2 := strconv.Atoi(rng[2])
			if err1 != nil || err2 != nil || lo <= 0 || hi < lo || hi-lo > 100 {
				continue
			}
			for p := lo; p <= hi; p++ {
				set[p] = struct{}{}
			}
		}
		// Standalone numbers not already consumed by a range.
		remainder := pageRangePattern.ReplaceAllString(list, "")
		for _, num := range pageNumPattern.FindAllString(remainder, -1) {
			p, err := strconv.Atoi(num)
			if err != nil || p <= 0 {
				continue
			}
			set[p] = struct{}{}
		}
	}

	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
