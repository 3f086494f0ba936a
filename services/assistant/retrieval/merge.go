// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// MergeChunks merges the results of parallel search passes.
//
// # Description
//
// Chunks are deduplicated by (document, page, content); when the same chunk
// appears in multiple result sets the highest score wins. The merged set is
// sorted by score descending, then document ID and page for a stable order,
// and truncated to limit.
func MergeChunks(resultSets [][]Chunk, limit int) []Chunk {
	best := make(map[string]Chunk)
	for _, set := range resultSets {
		for _, c := range set {
			key := chunkKey(c)
			if existing, ok := best[key]; !ok || c.Score > existing.Score {
				best[key] = c
			}
		}
	}

	merged := make([]Chunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].DocumentID != merged[j].DocumentID {
			return merged[i].DocumentID < merged[j].DocumentID
		}
		return merged[i].Page < merged[j].Page
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// chunkKey identifies a chunk across result sets. Content is hashed so the
// key stays small for large passages.
func chunkKey(c Chunk) string {
	sum := sha256.Sum256([]byte(c.Content))
	return fmt.Sprintf("%s:%d:%s", c.DocumentID, c.Page, hex.EncodeToString(sum[:8]))
}
