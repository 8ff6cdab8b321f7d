package engine

import (
	"regexp"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
)

type CandidateSource string

const (
	SourceChoice   CandidateSource = "choice"
	SourceSku      CandidateSource = "sku"
	SourceFallback CandidateSource = "fallback"
)

// Candidate is one identifier pulled from a line item, tagged with where it
// came from so the resolver can apply its priority order.
type Candidate struct {
	Identifier string
	Source     CandidateSource
}

var choiceTokenPattern = regexp.MustCompile(`\b[A-Z][0-9]{2}\b`)

// ExtractChoiceTokens returns the choice tokens found in free-text
// customization fields, in first-occurrence order, de-duplicated.
func ExtractChoiceTokens(rawChoiceText string) []string {
	if rawChoiceText == "" {
		return nil
	}
	matches := choiceTokenPattern.FindAllString(rawChoiceText, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		tokens = append(tokens, m)
	}
	return tokens
}

// ExtractCandidates builds the ordered candidate list for a line item:
// choice tokens first, then the raw SKU, then the platform product code as
// the always-present fallback. Pure function of the item.
func ExtractCandidates(item models.OrderLineItem) []Candidate {
	var candidates []Candidate
	for _, token := range ExtractChoiceTokens(item.RawChoiceText) {
		candidates = append(candidates, Candidate{Identifier: token, Source: SourceChoice})
	}
	if item.RawSku != "" {
		candidates = append(candidates, Candidate{Identifier: item.RawSku, Source: SourceSku})
	}
	if item.PlatformProductCode != "" {
		candidates = append(candidates, Candidate{Identifier: item.PlatformProductCode, Source: SourceFallback})
	}
	return candidates
}
