package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	Model          string // e.g. "gemini-2.5-flash"
	BaseURL        string // optional API endpoint override
	MaxPromptChars int
	HTTPClient     *http.Client
}

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	maxPromptChars int
}

// NewGeminiClient creates a Gemini client. Without an API key the client is
// returned unconfigured and every call fails with ErrNotConfigured.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxChars := cfg.MaxPromptChars
	if maxChars == 0 {
		maxChars = DefaultMaxPromptChars
	}
	c := &GeminiClient{model: model, maxPromptChars: maxChars}
	if cfg.APIKey == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	c.client = client
	return c, nil
}

// Generate sends the conversation to Gemini. System messages become the
// system instruction; assistant turns are sent with the model role.
func (c *GeminiClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", ErrNotConfigured
	}

	system, contents := toGeminiContents(TruncateMessages(messages, c.maxPromptChars))
	if len(contents) == 0 {
		return "", errors.New("gemini: no user content")
	}

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", errors.Wrap(err, "gemini generate")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
