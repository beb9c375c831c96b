package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/reliefmatch/reliefmatch/internal/reasoning"
)

// maxHistoryEntries caps the backend-context window at the most recent 10
// exchanges. Older entries are dropped oldest-first; the transcript is
// unaffected.
const maxHistoryEntries = 20

// Context is the session-scoped crisis context supplied by the caller. It is
// mutated only through UpdateContext merges, never replaced wholesale.
type Context struct {
	Classification   reasoning.Classification
	MatchedCharities []reasoning.MatchedCharity
	ArticleTitle     string
	ArticleText      string
	ArticleSummary   string
	ArticleURL       string
}

// ContextUpdate carries a partial context merge. Zero-valued fields retain
// the session's prior values: strings apply when non-empty, slices when
// non-nil, and the classification when the pointer is set.
type ContextUpdate struct {
	Classification   *reasoning.Classification
	MatchedCharities []reasoning.MatchedCharity
	ArticleTitle     string
	ArticleText      string
	ArticleSummary   string
	ArticleURL       string
}

// TranscriptStore persists transcript messages as they are appended.
// Persistence is best-effort: failures are logged and never surfaced
// through the session API.
type TranscriptStore interface {
	SaveMessage(ctx context.Context, sessionID string, msg *Message) error
}

// Session owns one conversation. Its methods are safe for concurrent use,
// but overlapping ProcessMessage calls append their user/agent pairs
// independently and may interleave; callers wanting strict alternation
// should serialize their calls.
type Session struct {
	log    *slog.Logger
	client reasoning.Client
	store  TranscriptStore
	id     string

	mu         sync.Mutex
	context    Context
	webSearch  bool
	transcript []*Message
	history    []reasoning.HistoryEntry
}

// Option configures optional session collaborators.
type Option func(*Session)

// WithTranscriptStore enables best-effort transcript persistence.
func WithTranscriptStore(store TranscriptStore) Option {
	return func(s *Session) { s.store = store }
}

// NewSession creates a session with the given crisis context and web-search
// flag. The transcript and backend-context history start empty.
func NewSession(log *slog.Logger, client reasoning.Client, ctx Context, webSearchEnabled bool, opts ...Option) *Session {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		log:       log.With("component", "chat_session"),
		client:    client,
		id:        uuid.NewString(),
		context:   ctx,
		webSearch: webSearchEnabled,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// SetWebSearchEnabled toggles web search on subsequent backend calls.
func (s *Session) SetWebSearchEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webSearch = enabled
}

// IsWebSearchEnabled reports whether web search is forwarded on backend calls.
func (s *Session) IsWebSearchEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webSearch
}

// Greeting returns the opening agent message for the current context. It is
// a pure function of the context: no network call, no transcript append.
// Recording it as the first transcript entry is the caller's decision.
func (s *Session) Greeting() *Message {
	s.mu.Lock()
	cause := s.context.Classification.Cause
	geo := s.context.Classification.GeoName
	s.mu.Unlock()

	if cause == "" {
		cause = "crisis"
	}
	var text string
	if geo != "" {
		text = fmt.Sprintf("I'm here to help you understand the %s in %s and find trusted ways to support the response. What would you like to know?", cause, geo)
	} else {
		text = fmt.Sprintf("I'm here to help you understand this %s and find trusted ways to support the response. What would you like to know?", cause)
	}
	return newMessage(RoleAgent, text, slices.Clone(greetingQuickReplies), nil)
}

// ProcessMessage runs one conversation turn. It always returns an agent
// message and never propagates a failure: structured backend failures
// degrade to a template chosen by error kind, and transport failures
// degrade to a connectivity apology. Every call appends exactly one user
// entry and one agent entry to the transcript, in that order.
func (s *Session) ProcessMessage(ctx context.Context, text string) *Message {
	userMsg := newMessage(RoleUser, text, nil, nil)

	s.mu.Lock()
	s.transcript = append(s.transcript, userMsg)
	req := &reasoning.Request{
		Message:         text,
		Context:         s.requestContextLocked(),
		History:         slices.Clone(s.history),
		EnableWebSearch: s.webSearch,
	}
	s.mu.Unlock()
	s.persist(ctx, userMsg)

	result, err := s.client.Generate(ctx, req)

	var agentMsg *Message
	switch {
	case err != nil:
		s.log.WarnContext(ctx, "Reasoning call failed, degrading to outage reply", "error", err)
		agentMsg = newMessage(RoleAgent, outageFallback, slices.Clone(outageQuickReplies), nil)
	case !result.Success:
		s.log.WarnContext(ctx, "Reasoning backend reported failure, degrading by error kind", "backend_error", result.Error)
		agentMsg = newMessage(RoleAgent, FallbackMessage(result.Error), slices.Clone(failureQuickReplies), nil)
	default:
		reply := result.Data
		s.appendExchange(text, reply.Message)
		agentMsg = newMessage(RoleAgent, reply.Message, reply.Suggestions, reply.Sources)
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, agentMsg)
	s.mu.Unlock()
	s.persist(ctx, agentMsg)

	return agentMsg
}

// History returns the full transcript in insertion order.
func (s *Session) History() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

// BackendHistory returns the bounded backend-context window, oldest first.
func (s *Session) BackendHistory() []reasoning.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// UpdateContext merges the given fields into the session context. Used when
// richer article data arrives after the session started, so later turns
// carry it without restarting the conversation.
func (s *Session) UpdateContext(update ContextUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Classification != nil {
		s.context.Classification = *update.Classification
	}
	if update.MatchedCharities != nil {
		s.context.MatchedCharities = update.MatchedCharities
	}
	if update.ArticleTitle != "" {
		s.context.ArticleTitle = update.ArticleTitle
	}
	if update.ArticleText != "" {
		s.context.ArticleText = update.ArticleText
	}
	if update.ArticleSummary != "" {
		s.context.ArticleSummary = update.ArticleSummary
	}
	if update.ArticleURL != "" {
		s.context.ArticleURL = update.ArticleURL
	}
}

// appendExchange records a successful user/model pair in the backend-context
// window, then truncates to the most recent maxHistoryEntries entries.
func (s *Session) appendExchange(userText, modelText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		reasoning.HistoryEntry{Role: reasoning.RoleUser, Content: userText},
		reasoning.HistoryEntry{Role: reasoning.RoleModel, Content: modelText},
	)
	if len(s.history) > maxHistoryEntries {
		s.history = slices.Clone(s.history[len(s.history)-maxHistoryEntries:])
	}
}

func (s *Session) requestContextLocked() reasoning.Context {
	return reasoning.Context{
		ArticleTitle:     s.context.ArticleTitle,
		ArticleText:      s.context.ArticleText,
		ArticleSummary:   s.context.ArticleSummary,
		ArticleURL:       s.context.ArticleURL,
		Classification:   s.context.Classification,
		MatchedCharities: slices.Clone(s.context.MatchedCharities),
	}
}

func (s *Session) persist(ctx context.Context, msg *Message) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveMessage(ctx, s.id, msg); err != nil {
		s.log.WarnContext(ctx, "Failed to persist transcript message", "message_id", msg.ID, "error", err)
	}
}
