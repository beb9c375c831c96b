package orgs

import (
	"sort"
	"strings"
)

// Field weights for relevance scoring. A term hit in the name counts more
// than one in the category, which counts more than one in the description.
const (
	nameWeight        = 3
	categoryWeight    = 2
	descriptionWeight = 1
)

// rankByRelevance reorders nonprofits in place by descending relevance to
// the search term. The sort is stable, so records the term cannot separate
// keep their backend order.
func rankByRelevance(nonprofits []Nonprofit, term string) {
	tokens := strings.Fields(strings.ToLower(term))
	if len(tokens) == 0 {
		return
	}

	scores := make(map[string]int, len(nonprofits))
	for _, n := range nonprofits {
		scores[n.Slug] = relevanceScore(n, tokens)
	}

	sort.SliceStable(nonprofits, func(i, j int) bool {
		return scores[nonprofits[i].Slug] > scores[nonprofits[j].Slug]
	})
}

func relevanceScore(n Nonprofit, tokens []string) int {
	name := strings.ToLower(n.Name)
	description := strings.ToLower(n.Description)
	category := strings.ToLower(strings.Join(append([]string{n.Category}, n.Categories...), " "))

	score := 0
	for _, token := range tokens {
		score += nameWeight * strings.Count(name, token)
		score += categoryWeight * strings.Count(category, token)
		score += descriptionWeight * strings.Count(description, token)
	}
	return score
}
