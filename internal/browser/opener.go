// Package browser resolves navigation requests to URLs and opens them.
package browser

import (
	"context"
	"net/url"
	"strings"

	pkgbrowser "github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/textutil"
)

const googleSearchURL = "https://www.google.com/search?q="

// Mode selects where a resolved URL is opened.
type Mode string

const (
	// ModeServer opens the URL on the machine running the server.
	ModeServer Mode = "server"
	// ModeClient only reports the URL; the client opens it.
	ModeClient Mode = "client"
)

// ParseMode maps a config value to a Mode, defaulting to ModeClient.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeServer {
		return ModeServer
	}
	return ModeClient
}

// Opener handles navigation utterances.
type Opener interface {
	// TryOpen reports the URL for the utterance and whether it matched at all.
	TryOpen(ctx context.Context, utterance string) (string, bool)
}

// BrowserOpener resolves URLs with the classifier's site and search tables.
type BrowserOpener struct {
	classifier *intent.Classifier
	mode       Mode
	open       func(string) error
	log        zerolog.Logger
}

// New creates an opener. In server mode URLs are opened with the system
// browser.
func New(classifier *intent.Classifier, mode Mode, log zerolog.Logger) *BrowserOpener {
	return &BrowserOpener{
		classifier: classifier,
		mode:       mode,
		open:       pkgbrowser.OpenURL,
		log:        log.With().Str("component", "browser").Logger(),
	}
}

// Resolve returns the URL a navigation utterance refers to: a known site, or
// a Google search for the rest of the sentence.
func (b *BrowserOpener) Resolve(utterance string) (string, bool) {
	if name, ok := b.classifier.MatchSite(utterance); ok {
		return b.classifier.Sites()[name], true
	}
	if !intent.MatchesSearch(utterance) {
		return "", false
	}

	query := textutil.Normalize(utterance)
	for _, phrase := range intent.SearchPhrases {
		query = strings.Replace(query, strings.TrimSpace(phrase), "", 1)
	}
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		query = strings.TrimSpace(utterance)
	}
	return googleSearchURL + url.QueryEscape(query), true
}

func (b *BrowserOpener) TryOpen(ctx context.Context, utterance string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	u, ok := b.Resolve(utterance)
	if !ok {
		return "", false
	}
	if b.mode == ModeServer {
		if err := b.open(u); err != nil {
			// Still handled: the URL goes back in the frame.
			b.log.Warn().Err(err).Str("url", u).Msg("failed to open browser")
		}
	}
	b.log.Info().Str("url", u).Str("mode", string(b.mode)).Msg("navigation resolved")
	return u, true
}
