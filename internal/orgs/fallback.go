package orgs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
)

// fallbackJSON is the bundled dataset of vetted organizations served when
// live retrieval fails. Records are authored directly in the Charity shape.
//
//go:embed fallback.json
var fallbackJSON []byte

var fallbackCharities = mustLoadFallback()

func mustLoadFallback() []Charity {
	var charities []Charity
	if err := json.Unmarshal(fallbackJSON, &charities); err != nil {
		panic(fmt.Sprintf("invalid embedded fallback dataset: %v", err))
	}
	return charities
}

// FallbackCharities returns the full bundled dataset, unfiltered and
// unranked.
func FallbackCharities() []Charity {
	return slices.Clone(fallbackCharities)
}

func fallbackBySlug(slug string) (Charity, bool) {
	for _, c := range fallbackCharities {
		if c.Slug == slug {
			return c, true
		}
	}
	return Charity{}, false
}
