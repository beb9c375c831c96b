package orgs

import "strings"

// Nonprofit is the normalized record every upstream shape collapses into
// before filtering and ranking. It is the single normalization boundary:
// backend records pass through normalizeOrganization, fallback records are
// authored directly in the display shape.
type Nonprofit struct {
	Slug          string
	Name          string
	Description   string
	LogoURL       string
	CoverImageURL string
	WebsiteURL    string
	EIN           string
	Location      string
	Category      string
	Categories    []string
}

func normalizeOrganization(raw OrganizationAPIResponse) Nonprofit {
	location := raw.Location
	if location == "" {
		location = raw.LocationAddress
	}

	category := raw.PrimaryCategory
	if category == "" {
		category = raw.NTEECodeMeaning
	}
	if category == "" && len(raw.Categories) > 0 {
		category = raw.Categories[0]
	}

	return Nonprofit{
		Slug:          raw.Slug,
		Name:          strings.TrimSpace(raw.Name),
		Description:   strings.TrimSpace(raw.Description),
		LogoURL:       raw.LogoURL,
		CoverImageURL: raw.CoverImageURL,
		WebsiteURL:    raw.WebsiteURL,
		EIN:           raw.EIN,
		Location:      location,
		Category:      category,
		Categories:    raw.Categories,
	}
}

func (n Nonprofit) toCharity() Charity {
	return Charity{
		Name:          n.Name,
		Description:   n.Description,
		TrustScore:    trustScore(n),
		Slug:          n.Slug,
		Location:      n.Location,
		Category:      n.Category,
		LogoURL:       n.LogoURL,
		CoverImageURL: n.CoverImageURL,
	}
}

// trustScore derives a display score from record completeness. Registered
// organizations with an EIN and a substantive description score highest.
func trustScore(n Nonprofit) float64 {
	score := 70.0
	if n.EIN != "" {
		score += 10
	}
	if n.WebsiteURL != "" {
		score += 5
	}
	if n.LogoURL != "" {
		score += 5
	}
	if len(n.Description) >= 80 {
		score += 5
	}
	return score
}

// defaultRelevanceFilter discards records too sparse to show: a display
// record needs a slug, a name, and some description text.
func defaultRelevanceFilter(n Nonprofit) bool {
	return n.Slug != "" && n.Name != "" && n.Description != ""
}

// defaultSearchFilter keeps records that mention at least one term token in
// a searchable field. An empty term keeps everything.
func defaultSearchFilter(n Nonprofit, term string) bool {
	tokens := strings.Fields(strings.ToLower(term))
	if len(tokens) == 0 {
		return true
	}

	haystack := strings.ToLower(strings.Join(append([]string{n.Name, n.Description, n.Category}, n.Categories...), " "))
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
