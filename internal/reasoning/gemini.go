package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/reliefmatch/reliefmatch/internal/config"
)

// geminiClient implements Client against the Gemini API directly. Web search
// turns on the GoogleSearch tool and reports grounding chunks as citations;
// without web search the model is asked for a JSON reply carrying follow-up
// suggestions alongside the answer text.
type geminiClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
	modelName   string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
}

// NewGeminiClient creates a reasoning client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, cfg config.ReasoningConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "reasoning_gemini")
	logger.Info("Gemini reasoning client initialized", "model", cfg.ModelName)
	return &geminiClient{
		genaiClient: gi,
		log:         logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

var replySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"message":     {Type: genai.TypeString, Description: "The reply shown to the user. May contain light markdown."},
		"suggestions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Up to four short follow-up questions the user is likely to ask next."},
	},
	Required: []string{"message", "suggestions"},
}

const systemInstructionTemplate = `You are a compassionate assistant helping a reader understand a humanitarian crisis and decide how to help.

Crisis briefing:
- Cause: %s
- Location: %s
- Severity: %s
- Identified needs: %s
- Affected groups: %s

Matched organizations accepting donations:
%s

Article summary:
%s

Answer questions factually based on the briefing and article. Keep replies short and warm. When relevant, point the reader toward the matched organizations and the donation step. Never invent casualty figures or organization details.`

func buildSystemInstruction(c Context) string {
	var charities strings.Builder
	for _, mc := range c.MatchedCharities {
		fmt.Fprintf(&charities, "- %s (trust score %.0f): %s\n", mc.Name, mc.TrustScore, mc.Description)
	}
	if charities.Len() == 0 {
		charities.WriteString("- none matched yet\n")
	}

	summary := c.ArticleSummary
	if summary == "" {
		summary = c.ArticleText
	}
	if c.ArticleTitle != "" {
		summary = c.ArticleTitle + "\n" + summary
	}

	return fmt.Sprintf(systemInstructionTemplate,
		c.Classification.Cause,
		c.Classification.GeoName,
		c.Classification.Severity,
		strings.Join(c.Classification.IdentifiedNeeds, ", "),
		strings.Join(c.Classification.AffectedGroups, ", "),
		charities.String(),
		summary,
	)
}

func (c *geminiClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	c.log.DebugContext(ctx, "Generating reply", "history_len", len(req.History), "web_search", req.EnableWebSearch)

	var contents []*genai.Content
	for _, entry := range req.History {
		role := genai.Role(genai.RoleUser)
		if entry.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	temperature := c.temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: buildSystemInstruction(req.Context)}}},
	}
	if req.EnableWebSearch {
		// Tool use and JSON schema output are mutually exclusive, so search
		// turns grounding on and structured suggestions off.
		genCfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else {
		genCfg.ResponseMIMEType = "application/json"
		genCfg.ResponseSchema = replySchema
	}

	resp, result, err := c.generateWithRetries(ctx, contents, genCfg)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no content")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty text")
	}

	reply := &Reply{Message: text}
	if req.EnableWebSearch {
		reply.Sources = extractSources(resp.Candidates[0])
	} else if parsed, ok := parseStructuredReply(text); ok {
		reply = parsed
	}

	return &Result{Success: true, Data: reply}, nil
}

// generateWithRetries calls the API up to maxRetries+1 times, retrying on
// rate-limit and transient server errors. Exhausted retriable failures come
// back as a structured Result so the session can degrade by error kind.
func (c *geminiClient) generateWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, *Result, error) {
	var lastCode int
	for i := 0; i <= c.maxRetries; i++ {
		resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code == 500 || apiErr.Code == 503) {
			lastCode = apiErr.Code
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries", "code", apiErr.Code, "error", err)
			if lastCode == 429 {
				return nil, &Result{Success: false, Error: "rate limit exceeded: too many requests, please wait before retrying"}, nil
			}
			return nil, &Result{Success: false, Error: "the assistant service is temporarily unavailable due to high demand"}, nil
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, nil, fmt.Errorf("gemini API call failed after %d attempts", c.maxRetries+1)
}

// parseStructuredReply decodes the JSON reply produced under replySchema.
// A decode failure falls back to treating the raw text as the message.
func parseStructuredReply(text string) (*Reply, bool) {
	var structured struct {
		Message     string   `json:"message"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &structured); err != nil || structured.Message == "" {
		return nil, false
	}
	return &Reply{Message: structured.Message, Suggestions: structured.Suggestions}, true
}

func extractSources(candidate *genai.Candidate) []Source {
	if candidate.GroundingMetadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		sources = append(sources, Source{Title: title, URL: chunk.Web.URI})
	}
	return sources
}
