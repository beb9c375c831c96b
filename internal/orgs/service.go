// Package orgs fetches, filters, ranks, and memoizes the organizations shown
// to a reader. Every pipeline failure substitutes the bundled fallback
// dataset so the organization list is never empty; callers see only the
// normalized Charity shape regardless of where a record came from.
package orgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/reliefmatch/reliefmatch/internal/config"
)

// allKey is the reserved cache key for fetches without a search term.
const allKey = "__all__"

// Charity is the single display shape every organization record collapses
// into before ranking or display. Callers never branch on provenance.
type Charity struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	TrustScore    float64 `json:"trustScore"`
	Slug          string  `json:"slug"`
	Location      string  `json:"location"`
	Category      string  `json:"category"`
	LogoURL       string  `json:"logoUrl"`
	CoverImageURL string  `json:"coverImageUrl"`
}

// OrganizationAPIResponse is the raw record returned by the search backend.
type OrganizationAPIResponse struct {
	Slug            string   `json:"slug"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	LogoURL         string   `json:"logoUrl,omitempty"`
	CoverImageURL   string   `json:"coverImageUrl,omitempty"`
	WebsiteURL      string   `json:"websiteUrl,omitempty"`
	EIN             string   `json:"ein,omitempty"`
	Location        string   `json:"location,omitempty"`
	LocationAddress string   `json:"locationAddress,omitempty"`
	PrimaryCategory string   `json:"primaryCategory,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	NTEECode        string   `json:"nteeCode,omitempty"`
	NTEECodeMeaning string   `json:"nteeCodeMeaning,omitempty"`
}

type searchResponse struct {
	Success       bool                      `json:"success"`
	Organizations []OrganizationAPIResponse `json:"organizations"`
}

type lookupResponse struct {
	Success      bool                     `json:"success"`
	Organization *OrganizationAPIResponse `json:"organization"`
}

// Service is the organization retrieval and ranking cache. For a given
// process lifetime each distinct search key triggers at most one successful
// network fetch; concurrent misses for the same key are coalesced into a
// single in-flight request.
type Service struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string

	// RelevanceFilter discards records unfit for display regardless of the
	// search term. SearchFilter discards records irrelevant to the term.
	// Both are collaborator-supplied; defaults are applied by NewService.
	RelevanceFilter func(Nonprofit) bool
	SearchFilter    func(Nonprofit, string) bool

	group   singleflight.Group
	mu      sync.Mutex
	cache   map[string][]Charity
	loading int
	lastErr string
}

// NewService creates an organization service against the configured search
// backend.
func NewService(cfg config.OrgsConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		log:             log.With("component", "orgs_service"),
		http:            &http.Client{Timeout: cfg.Timeout},
		baseURL:         cfg.BaseURL,
		RelevanceFilter: defaultRelevanceFilter,
		SearchFilter:    defaultSearchFilter,
		cache:           make(map[string][]Charity),
	}
}

// Fetch returns the ranked charity list for a search term (empty term means
// the unranked default list). Cached keys are returned without a network
// call; on any failure the full fallback dataset is returned and the error
// flag is set.
func (s *Service) Fetch(ctx context.Context, term string) []Charity {
	key := cacheKey(term)

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "Organization cache hit", "key", key)
		return slices.Clone(cached)
	}
	s.mu.Unlock()

	return s.load(ctx, key, term)
}

// Refetch evicts any cache entry for the term's key and runs the Fetch
// pipeline again, guaranteeing a fresh network attempt.
func (s *Service) Refetch(ctx context.Context, term string) []Charity {
	key := cacheKey(term)

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	s.group.Forget(key)

	return s.load(ctx, key, term)
}

// FetchOne retrieves a single organization by slug. On any failure it falls
// back to a linear lookup in the bundled dataset before reporting absence.
func (s *Service) FetchOne(ctx context.Context, slug string) (Charity, bool) {
	s.beginAttempt()
	defer s.endAttempt()

	charity, err := s.lookupRemote(ctx, slug)
	if err == nil {
		return charity, true
	}

	s.log.WarnContext(ctx, "Organization lookup failed, checking fallback dataset", "slug", slug, "error", err)
	s.setError(err)
	return fallbackBySlug(slug)
}

// IsLoading reports whether a fetch or refetch is outstanding. Advisory UI
// state only.
func (s *Service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// LastError returns the most recent failure message, or empty after a clean
// attempt started. Advisory UI state only.
func (s *Service) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) load(ctx context.Context, key, term string) []Charity {
	s.beginAttempt()
	defer s.endAttempt()

	v, err, _ := s.group.Do(key, func() (any, error) {
		charities, err := s.fetchRemote(ctx, term)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = charities
		s.mu.Unlock()
		return charities, nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "Organization fetch failed, serving fallback dataset", "key", key, "error", err)
		s.setError(err)
		return FallbackCharities()
	}

	return slices.Clone(v.([]Charity))
}

// fetchRemote runs the full retrieval pipeline: search call, normalization,
// the two relevance filters, term ranking, and mapping to the display shape.
func (s *Service) fetchRemote(ctx context.Context, term string) ([]Charity, error) {
	endpoint := s.baseURL + "/organizations"
	if term != "" {
		endpoint += "?search=" + url.QueryEscape(term)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build organization search request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("organization search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("organization search returned status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode organization search response: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("organization search backend reported failure")
	}

	nonprofits := make([]Nonprofit, 0, len(payload.Organizations))
	for _, raw := range payload.Organizations {
		n := normalizeOrganization(raw)
		if !s.RelevanceFilter(n) || !s.SearchFilter(n, term) {
			continue
		}
		nonprofits = append(nonprofits, n)
	}

	if term != "" {
		rankByRelevance(nonprofits, term)
	}

	charities := make([]Charity, 0, len(nonprofits))
	for _, n := range nonprofits {
		charities = append(charities, n.toCharity())
	}

	s.log.DebugContext(ctx, "Organizations fetched",
		"term", term, "received", len(payload.Organizations), "kept", len(charities))
	return charities, nil
}

func (s *Service) lookupRemote(ctx context.Context, slug string) (Charity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/organizations/"+url.PathEscape(slug), nil)
	if err != nil {
		return Charity{}, fmt.Errorf("failed to build organization lookup request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Charity{}, fmt.Errorf("organization lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Charity{}, fmt.Errorf("organization lookup returned status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Charity{}, fmt.Errorf("failed to decode organization lookup response: %w", err)
	}
	if !payload.Success || payload.Organization == nil {
		return Charity{}, fmt.Errorf("organization lookup backend reported failure")
	}

	return normalizeOrganization(*payload.Organization).toCharity(), nil
}

func (s *Service) beginAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading++
	s.lastErr = ""
}

func (s *Service) endAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

// cacheKey normalizes a search term into its cache key. Absent terms map to
// the reserved "all" key.
func cacheKey(term string) string {
	normalized := strings.ToLower(strings.TrimSpace(term))
	if normalized == "" {
		return allKey
	}
	return normalized
}
