// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"regexp"
	"strings"
)

// Injection-looking patterns stripped before the query reaches retrieval or
// generation. Removal, not rejection: the rest of the question may still be
// answerable.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|messages?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|messages?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you('ve| have)?\s+)?(been\s+told|learned|above)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\s+`),
	regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(your\s+)?(system\s+prompt|instructions|initial\s+prompt)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?(a\s+)?(different|new|unrestricted)`),
	regexp.MustCompile(`(?i)\bnew\s+(system\s+)?instructions?\s*:`),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|instructions?)\s*>`),
}

var whitespaceCollapse = regexp.MustCompile(`\s+`)

// Sanitize strips instruction-override phrasing from query and normalizes
// whitespace. Returns the original trimmed query when nothing matched.
func Sanitize(query string) string {
	cleaned := query
	for _, p := range injectionPatterns {
		cleaned = p.ReplaceAllString(cleaned, " ")
	}
	cleaned = whitespaceCollapse.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
