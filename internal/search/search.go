// Package search answers questions with help from a web search.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/aria/internal/llm"
)

// ErrNotConfigured is returned by searchers that need credentials they lack.
var ErrNotConfigured = errors.New("search: not configured")

const (
	noSummary        = "(No web summary found)"
	defaultMaxResult = 3
)

// Hit is one search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher runs a web query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// Summarize joins hit titles into a one-line summary.
func Summarize(hits []Hit) string {
	titles := make([]string, 0, len(hits))
	for _, h := range hits {
		if t := strings.TrimSpace(h.Title); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return noSummary
	}
	return strings.Join(titles, " | ")
}

// EnhancerConfig configures an Enhancer.
type EnhancerConfig struct {
	SystemPrompt string
	MaxResults   int
	Logger       zerolog.Logger
}

// Enhancer answers a question by searching first and handing the summary to
// the language model.
type Enhancer struct {
	searcher Searcher
	llm      llm.Client
	system   string
	max      int
	log      zerolog.Logger
}

// NewEnhancer creates an Enhancer.
func NewEnhancer(searcher Searcher, client llm.Client, cfg EnhancerConfig) *Enhancer {
	max := cfg.MaxResults
	if max <= 0 {
		max = defaultMaxResult
	}
	return &Enhancer{
		searcher: searcher,
		llm:      client,
		system:   cfg.SystemPrompt,
		max:      max,
		log:      cfg.Logger.With().Str("component", "search").Logger(),
	}
}

// Enhance returns an answer to question. A failed search does not stop the
// model call; the failure is noted in the summary instead. When the model
// fails but the search found something, the raw summary is returned.
func (e *Enhancer) Enhance(ctx context.Context, question string) (string, error) {
	hits, err := e.searcher.Search(ctx, question, e.max)
	summary := Summarize(hits)
	if err != nil {
		e.log.Warn().Err(err).Msg("web search failed")
		summary = fmt.Sprintf("(Web search failed: %v)", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	msgs := make([]llm.Message, 0, 2)
	if e.system != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: e.system})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: llm.SearchPrompt(question, summary)})

	answer, llmErr := e.llm.Generate(ctx, msgs)
	if llmErr == nil {
		return answer, nil
	}
	if err == nil && len(hits) > 0 && ctx.Err() == nil {
		e.log.Warn().Err(llmErr).Msg("llm failed, answering with search summary")
		return "Web info: " + summary, nil
	}
	return "", llmErr
}
