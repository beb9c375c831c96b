// Package reasoning implements the remote reasoning client used by the
// conversation session. A client performs one logical call per user turn,
// applying its own retry policy for transient failures. Structured failures
// come back as a Result with Success set to false; a non-nil error is
// reserved for transport-level breakage (connection failures, malformed
// payloads) that the caller handles as the exceptional path.
package reasoning

import "context"

// History entry roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Source is a citation attached to a reply.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HistoryEntry is one retained exchange turn sent back for continuity.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classification describes the crisis extracted from the source article.
type Classification struct {
	Cause           string   `json:"cause"`
	GeoName         string   `json:"geoName"`
	Severity        string   `json:"severity"`
	IdentifiedNeeds []string `json:"identified_needs"`
	AffectedGroups  []string `json:"affectedGroups"`
}

// MatchedCharity is the charity summary forwarded to the backend so replies
// can reference the organizations the user is about to see.
type MatchedCharity struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	TrustScore  float64 `json:"trustScore"`
}

// Context carries the session context forwarded on every call.
type Context struct {
	ArticleTitle     string           `json:"articleTitle"`
	ArticleText      string           `json:"articleText"`
	ArticleSummary   string           `json:"articleSummary"`
	ArticleURL       string           `json:"articleUrl,omitempty"`
	Classification   Classification   `json:"classification"`
	MatchedCharities []MatchedCharity `json:"matchedCharities"`
}

// Request is the payload for one reasoning call.
type Request struct {
	Message         string         `json:"message"`
	Context         Context        `json:"context"`
	History         []HistoryEntry `json:"history"`
	EnableWebSearch bool           `json:"enableWebSearch"`
}

// Reply is the successful payload of a reasoning call.
type Reply struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Sources     []Source `json:"sources,omitempty"`
}

// Result is the structured outcome of one reasoning call. Exactly one of
// Data or Error is meaningful, selected by Success.
type Result struct {
	Success bool   `json:"success"`
	Data    *Reply `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client defines the reasoning backend interface used by the session.
// Generate returns a Result for every outcome the backend reported itself;
// it returns a non-nil error only when the call could not complete at all.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}
