package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanMarkdownWrapper strips markdown code fences that models like to wrap
// JSON responses in.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}

// parseRanking parses the oracle's response into ranked items. Any failure to
// produce at least one well-formed item is an error, which callers treat as
// "oracle unavailable". Individual malformed entries are dropped rather than
// failing the whole response.
func parseRanking(content string) ([]RankedItem, error) {
	content = cleanMarkdownWrapper(content)

	var raw []struct {
		Rationale      string  `json:"rationale"`
		Confidence     float64 `json:"confidence"`
		CandidateIndex int     `json:"candidate_index"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ranking JSON: %w", err)
	}

	items := make([]RankedItem, 0, len(raw))
	for _, entry := range raw {
		if entry.CandidateIndex < 0 {
			continue
		}
		confidence := entry.Confidence
		if confidence < 0.0 {
			confidence = 0.0
		} else if confidence > 1.0 {
			confidence = 1.0
		}
		items = append(items, RankedItem{
			CandidateIndex: entry.CandidateIndex,
			Confidence:     confidence,
			Rationale:      entry.Rationale,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no usable items in ranking response")
	}
	return items, nil
}
