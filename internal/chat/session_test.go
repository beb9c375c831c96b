package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmatch/reliefmatch/internal/chat"
	"github.com/reliefmatch/reliefmatch/internal/reasoning"
)

// stubClient is a reasoning.Client that records requests and returns a
// scripted outcome.
type stubClient struct {
	mu       sync.Mutex
	requests []*reasoning.Request
	replyFn  func(req *reasoning.Request) (*reasoning.Result, error)
}

func (c *stubClient) Generate(ctx context.Context, req *reasoning.Request) (*reasoning.Result, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.replyFn(req)
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *stubClient) lastRequest() *reasoning.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

func succeedWith(message string) func(*reasoning.Request) (*reasoning.Result, error) {
	return func(*reasoning.Request) (*reasoning.Result, error) {
		return &reasoning.Result{Success: true, Data: &reasoning.Reply{Message: message}}, nil
	}
}

func floodContext() chat.Context {
	return chat.Context{
		Classification: reasoning.Classification{
			Cause:    "flood",
			GeoName:  "Valencia",
			Severity: "severe",
		},
		MatchedCharities: []reasoning.MatchedCharity{
			{Name: "Direct Relief", Description: "Medical aid", TrustScore: 96},
		},
		ArticleSummary: "Flash floods displaced thousands in Valencia.",
	}
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	session := chat.NewSession(nil, &stubClient{}, floodContext(), false)

	greeting := session.Greeting()
	require.NotNil(t, greeting)
	assert.Equal(t, chat.RoleAgent, greeting.Role)
	assert.Contains(t, strings.ToLower(greeting.Content), "flood")
	assert.Contains(t, greeting.Content, "Valencia")
	assert.Equal(t, []string{"What happened?", "How bad is it?", "Who needs help?", "How can I help?"}, greeting.QuickReplies)

	// Pure function of context: no transcript append, identical text on repeat.
	assert.Empty(t, session.History())
	again := session.Greeting()
	assert.Equal(t, greeting.Content, again.Content)
	assert.Equal(t, greeting.QuickReplies, again.QuickReplies)
}

func TestProcessMessageSuccess(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		replyFn: func(*reasoning.Request) (*reasoning.Result, error) {
			return &reasoning.Result{Success: true, Data: &reasoning.Reply{
				Message:     "Flooding has displaced thousands.",
				Suggestions: []string{"Who is helping?"},
				Sources:     []reasoning.Source{{Title: "Report", URL: "https://example.org/report"}},
			}}, nil
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	reply := session.ProcessMessage(context.Background(), "What happened?")
	require.NotNil(t, reply)
	assert.Equal(t, chat.RoleAgent, reply.Role)
	assert.Equal(t, "Flooding has displaced thousands.", reply.Content)
	assert.Equal(t, []string{"Who is helping?"}, reply.QuickReplies)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "https://example.org/report", reply.Sources[0].URL)

	transcript := session.History()
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.RoleUser, transcript[0].Role)
	assert.Equal(t, "What happened?", transcript[0].Content)
	assert.Equal(t, chat.RoleAgent, transcript[1].Role)

	history := session.BackendHistory()
	require.Len(t, history, 2)
	assert.Equal(t, reasoning.HistoryEntry{Role: reasoning.RoleUser, Content: "What happened?"}, history[0])
	assert.Equal(t, reasoning.HistoryEntry{Role: reasoning.RoleModel, Content: "Flooding has displaced thousands."}, history[1])
}

func TestProcessMessageDefaultsMissingSuggestionsAndSources(t *testing.T) {
	t.Parallel()

	client := &stubClient{replyFn: succeedWith("Here is what I know.")}
	session := chat.NewSession(nil, client, floodContext(), false)

	reply := session.ProcessMessage(context.Background(), "Tell me more")
	require.NotNil(t, reply)
	assert.NotNil(t, reply.QuickReplies)
	assert.Empty(t, reply.QuickReplies)
	assert.NotNil(t, reply.Sources)
	assert.Empty(t, reply.Sources)
}

func TestTranscriptAlternatesAcrossOutcomes(t *testing.T) {
	t.Parallel()

	outcomes := []func(*reasoning.Request) (*reasoning.Result, error){
		succeedWith("ok"),
		func(*reasoning.Request) (*reasoning.Result, error) {
			return &reasoning.Result{Success: false, Error: "rate limit exceeded"}, nil
		},
		func(*reasoning.Request) (*reasoning.Result, error) {
			return nil, errors.New("connection reset")
		},
		succeedWith("ok again"),
	}

	call := 0
	client := &stubClient{
		replyFn: func(req *reasoning.Request) (*reasoning.Result, error) {
			outcome := outcomes[call%len(outcomes)]
			call++
			return outcome(req)
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	const turns = 8
	for i := 0; i < turns; i++ {
		reply := session.ProcessMessage(context.Background(), fmt.Sprintf("turn %d", i))
		require.NotNil(t, reply, "ProcessMessage must always return a message")
	}

	transcript := session.History()
	require.Len(t, transcript, turns*2)
	for i, msg := range transcript {
		if i%2 == 0 {
			assert.Equal(t, chat.RoleUser, msg.Role, "entry %d", i)
		} else {
			assert.Equal(t, chat.RoleAgent, msg.Role, "entry %d", i)
		}
	}
}

func TestBackendHistoryCappedAtTwenty(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		replyFn: func(req *reasoning.Request) (*reasoning.Result, error) {
			return &reasoning.Result{Success: true, Data: &reasoning.Reply{Message: "re: " + req.Message}}, nil
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	for i := 0; i < 15; i++ {
		session.ProcessMessage(context.Background(), fmt.Sprintf("question %d", i))
	}

	history := session.BackendHistory()
	require.Len(t, history, 20)

	// Most recent 10 exchanges survive, oldest first.
	assert.Equal(t, "question 5", history[0].Content)
	assert.Equal(t, reasoning.RoleUser, history[0].Role)
	assert.Equal(t, "re: question 14", history[19].Content)
	assert.Equal(t, reasoning.RoleModel, history[19].Role)
}

func TestProcessMessageStructuredFailure(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		replyFn: func(*reasoning.Request) (*reasoning.Result, error) {
			return &reasoning.Result{Success: false, Error: "Too many requests, try later"}, nil
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	reply := session.ProcessMessage(context.Background(), "help")
	require.NotNil(t, reply)
	assert.Equal(t, chat.RoleAgent, reply.Role)
	assert.Contains(t, reply.Content, "about 30 seconds")
	assert.Equal(t, []string{"What happened?", "How bad is it?", "How can I help?"}, reply.QuickReplies)

	// No pairing exists, so the backend-context window must not grow.
	assert.Empty(t, session.BackendHistory())
	assert.Len(t, session.History(), 2)
}

func TestProcessMessageTransportFailure(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		replyFn: func(*reasoning.Request) (*reasoning.Result, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	reply := session.ProcessMessage(context.Background(), "help")
	require.NotNil(t, reply)
	assert.Equal(t, []string{"Tell me about the organizations", "I'm ready to donate"}, reply.QuickReplies)
	assert.Empty(t, session.BackendHistory())

	transcript := session.History()
	require.Len(t, transcript, 2)
	assert.Equal(t, "help", transcript[0].Content, "the user's utterance is never dropped")
}

func TestRequestCarriesContextHistoryAndFlag(t *testing.T) {
	t.Parallel()

	client := &stubClient{replyFn: succeedWith("noted")}
	session := chat.NewSession(nil, client, floodContext(), true)

	session.ProcessMessage(context.Background(), "first")
	session.ProcessMessage(context.Background(), "second")

	req := client.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "second", req.Message)
	assert.True(t, req.EnableWebSearch)
	assert.Equal(t, "flood", req.Context.Classification.Cause)
	require.Len(t, req.Context.MatchedCharities, 1)

	// The second call sees the first exchange, not its own.
	require.Len(t, req.History, 2)
	assert.Equal(t, "first", req.History[0].Content)

	session.SetWebSearchEnabled(false)
	assert.False(t, session.IsWebSearchEnabled())
	session.ProcessMessage(context.Background(), "third")
	assert.False(t, client.lastRequest().EnableWebSearch)
}

func TestUpdateContextMerges(t *testing.T) {
	t.Parallel()

	client := &stubClient{replyFn: succeedWith("noted")}
	session := chat.NewSession(nil, client, floodContext(), false)

	session.UpdateContext(chat.ContextUpdate{
		ArticleText: "Full article text arrived after load.",
	})
	session.ProcessMessage(context.Background(), "anything new?")

	req := client.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "Full article text arrived after load.", req.Context.ArticleText)
	// Untouched fields retain their prior values.
	assert.Equal(t, "flood", req.Context.Classification.Cause)
	assert.Equal(t, "Flash floods displaced thousands in Valencia.", req.Context.ArticleSummary)

	updated := reasoning.Classification{Cause: "wildfire", GeoName: "Alberta"}
	session.UpdateContext(chat.ContextUpdate{Classification: &updated})
	session.ProcessMessage(context.Background(), "and now?")
	assert.Equal(t, "wildfire", client.lastRequest().Context.Classification.Cause)
	assert.Equal(t, "Full article text arrived after load.", client.lastRequest().Context.ArticleText)
}

func TestOneLogicalCallPerTurn(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		replyFn: func(*reasoning.Request) (*reasoning.Result, error) {
			return &reasoning.Result{Success: false, Error: "temporarily unavailable"}, nil
		},
	}
	session := chat.NewSession(nil, client, floodContext(), false)

	session.ProcessMessage(context.Background(), "hello")
	assert.Equal(t, 1, client.callCount(), "the session must not retry; retries belong to the client")
}
