// Package intent maps a finalized utterance to the single action the assistant
// should take for it.
package intent

import (
	"regexp"
	"strings"

	"github.com/lukasbauer/aria/internal/textutil"
)

// Intent is the classified purpose of an utterance.
type Intent string

const (
	DeviceCommand     Intent = "device_command"
	NavigationCommand Intent = "navigation_command"
	IdentityQuery     Intent = "identity_query"
	InformationQuery  Intent = "information_query"
	GeneralQuery      Intent = "general_query"
)

// All lists every intent in precedence order.
var All = []Intent{DeviceCommand, NavigationCommand, IdentityQuery, InformationQuery, GeneralQuery}

// Switch is the requested state of a switchable device.
type Switch string

const (
	SwitchOn  Switch = "on"
	SwitchOff Switch = "off"
)

// Word order is flexible: "turn on the light", "light on" and "on led" all match.
var (
	switchOnPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(turn|switch) on (the )?(led|light)s?\b`),
		regexp.MustCompile(`\b(led|light)s? on\b`),
		regexp.MustCompile(`\bon (the )?(led|light)s?\b`),
	}
	switchOffPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(turn|switch) off (the )?(led|light)s?\b`),
		regexp.MustCompile(`\b(led|light)s? off\b`),
		regexp.MustCompile(`\boff (the )?(led|light)s?\b`),
	}
)

// KnownSites maps site names that can be opened directly to their URLs.
var KnownSites = map[string]string{
	"youtube":      "https://www.youtube.com",
	"github":       "https://www.github.com",
	"wikipedia":    "https://www.wikipedia.org",
	"gmail":        "https://mail.google.com",
	"google drive": "https://drive.google.com",
	"reddit":       "https://www.reddit.com",
	"twitter":      "https://twitter.com",
	"facebook":     "https://facebook.com",
	"instagram":    "https://instagram.com",
}

// SearchPhrases mark an utterance as a request to look something up in the browser.
var SearchPhrases = []string{
	"search for",
	"look up",
	"google ",
	"latest news",
	"show me the news",
	"who won",
	"what happened",
	"current events",
}

var questionWords = []string{"who", "what", "when", "where", "why", "how"}

var identityPhrases = []string{
	"your name",
	"who are you",
	"what are you",
	"introduce yourself",
}

// Classifier classifies utterances. It holds only immutable configuration, so a
// single value can be shared across connections.
type Classifier struct {
	persona string
	sites   map[string]string
}

// NewClassifier returns a classifier that recognizes "are you <persona>" as an
// identity question. Extra sites are merged over KnownSites.
func NewClassifier(persona string, extraSites map[string]string) *Classifier {
	sites := make(map[string]string, len(KnownSites)+len(extraSites))
	for k, v := range KnownSites {
		sites[k] = v
	}
	for k, v := range extraSites {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			sites[k] = v
		}
	}
	return &Classifier{
		persona: strings.ToLower(strings.TrimSpace(persona)),
		sites:   sites,
	}
}

// Sites returns the site table used for navigation matching.
func (c *Classifier) Sites() map[string]string {
	return c.sites
}

// Classify returns the first intent whose rule matches. Rules are checked in
// the order of All.
func (c *Classifier) Classify(utterance string) Intent {
	text := textutil.Normalize(utterance)

	if _, ok := ParseSwitch(text); ok {
		return DeviceCommand
	}
	if _, ok := c.MatchSite(text); ok || MatchesSearch(text) {
		return NavigationCommand
	}
	if c.isIdentity(text) {
		return IdentityQuery
	}
	if isQuestion(text) {
		return InformationQuery
	}
	return GeneralQuery
}

// ParseSwitch reports the device state requested by the utterance.
// "On" patterns win when both directions appear.
func ParseSwitch(utterance string) (Switch, bool) {
	text := textutil.Normalize(utterance)
	for _, p := range switchOnPatterns {
		if p.MatchString(text) {
			return SwitchOn, true
		}
	}
	for _, p := range switchOffPatterns {
		if p.MatchString(text) {
			return SwitchOff, true
		}
	}
	return "", false
}

// MatchSite returns the name of a known site the utterance asks to open.
func (c *Classifier) MatchSite(utterance string) (string, bool) {
	text := textutil.Normalize(utterance)
	best := ""
	for name := range c.sites {
		if strings.Contains(text, "open "+name) && len(name) > len(best) {
			best = name
		}
	}
	return best, best != ""
}

// MatchesSearch reports whether the utterance contains search phrasing.
func MatchesSearch(utterance string) bool {
	text := textutil.Normalize(utterance)
	for _, phrase := range SearchPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func (c *Classifier) isIdentity(text string) bool {
	for _, phrase := range identityPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return c.persona != "" && strings.Contains(text, "are you "+c.persona)
}

func isQuestion(text string) bool {
	if strings.HasSuffix(text, "?") {
		return true
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ",.!;:")
	for _, w := range questionWords {
		if first == w || strings.HasPrefix(first, w+"'") {
			return true
		}
	}
	return false
}
