package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrganization(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		raw          OrganizationAPIResponse
		wantLocation string
		wantCategory string
	}{
		{
			name: "location prefers location over address",
			raw: OrganizationAPIResponse{
				Location:        "Lisbon, PT",
				LocationAddress: "123 Somewhere St",
			},
			wantLocation: "Lisbon, PT",
		},
		{
			name: "location falls back to address",
			raw: OrganizationAPIResponse{
				LocationAddress: "123 Somewhere St",
			},
			wantLocation: "123 Somewhere St",
		},
		{
			name: "category prefers primary category",
			raw: OrganizationAPIResponse{
				PrimaryCategory: "Disaster Response",
				NTEECodeMeaning: "International Relief",
				Categories:      []string{"Health"},
			},
			wantCategory: "Disaster Response",
		},
		{
			name: "category falls back to ntee meaning",
			raw: OrganizationAPIResponse{
				NTEECodeMeaning: "International Relief",
				Categories:      []string{"Health"},
			},
			wantCategory: "International Relief",
		},
		{
			name: "category falls back to first category",
			raw: OrganizationAPIResponse{
				Categories: []string{"Health", "Children"},
			},
			wantCategory: "Health",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := normalizeOrganization(tc.raw)
			assert.Equal(t, tc.wantLocation, n.Location)
			assert.Equal(t, tc.wantCategory, n.Category)
		})
	}
}

func TestTrustScoreRewardsCompleteness(t *testing.T) {
	t.Parallel()

	sparse := Nonprofit{Name: "Sparse", Description: "Short."}
	complete := Nonprofit{
		Name:        "Complete",
		Description: "A registered organization with a long, substantive description of its relief programs and operations.",
		EIN:         "12-3456789",
		WebsiteURL:  "https://example.org",
		LogoURL:     "https://example.org/logo.png",
	}

	assert.Greater(t, trustScore(complete), trustScore(sparse))
	assert.LessOrEqual(t, trustScore(complete), 100.0)
}

func TestRankByRelevanceIsStableForTies(t *testing.T) {
	t.Parallel()

	nonprofits := []Nonprofit{
		{Slug: "a", Name: "Org A", Description: "flood response"},
		{Slug: "b", Name: "Org B", Description: "flood response"},
		{Slug: "c", Name: "Flood Org C", Description: "response"},
	}

	rankByRelevance(nonprofits, "flood")

	assert.Equal(t, "c", nonprofits[0].Slug)
	assert.Equal(t, "a", nonprofits[1].Slug)
	assert.Equal(t, "b", nonprofits[2].Slug)
}
