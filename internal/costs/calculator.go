// Package costs estimates what a voice session spent on provider APIs.
package costs

import (
	"os"
	"strconv"
	"sync/atomic"
)

// Pricing in cents per unit. Defaults follow the providers' list prices and
// can be overridden via environment variables.
var (
	// STTCentsPerMinute is the cost of one minute of streamed audio.
	// Default: $0.15/hour = 0.25 cents/min
	STTCentsPerMinute = getEnvFloat("COST_STT_CENTS_PER_MIN", 0.25)

	// LLMCentsPerThousandInputTokens. Default: $0.30/1M = 0.03 cents/1K tokens
	LLMCentsPerThousandInputTokens = getEnvFloat("COST_LLM_INPUT_CENTS_PER_1K", 0.03)

	// LLMCentsPerThousandOutputTokens. Default: $2.50/1M = 0.25 cents/1K tokens
	LLMCentsPerThousandOutputTokens = getEnvFloat("COST_LLM_OUTPUT_CENTS_PER_1K", 0.25)

	// TTSCentsPerThousandChars is the cost per 1K characters synthesized.
	TTSCentsPerThousandChars = getEnvFloat("COST_TTS_CENTS_PER_1K_CHARS", 3.0)

	// SearchCentsPerQuery is zero for the keyless DuckDuckGo scraper.
	SearchCentsPerQuery = getEnvFloat("COST_SEARCH_CENTS_PER_QUERY", 0)
)

// SessionUsage contains the raw usage of one session.
type SessionUsage struct {
	STTSeconds     float64 // audio streamed to recognition
	LLMInputChars  int
	LLMOutputChars int
	TTSCharacters  int
	SearchQueries  int
}

// SessionCosts contains the estimated costs in cents.
type SessionCosts struct {
	STTCents    float64
	LLMCents    float64
	TTSCents    float64
	SearchCents float64
	TotalCents  float64
}

// EstimateTokens approximates the token count of English text.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// CalculateSessionCosts computes the costs for a session.
func CalculateSessionCosts(u SessionUsage) SessionCosts {
	sttCents := (u.STTSeconds / 60.0) * STTCentsPerMinute

	llmInputCents := (float64(EstimateTokens(u.LLMInputChars)) / 1000.0) * LLMCentsPerThousandInputTokens
	llmOutputCents := (float64(EstimateTokens(u.LLMOutputChars)) / 1000.0) * LLMCentsPerThousandOutputTokens

	ttsCents := (float64(u.TTSCharacters) / 1000.0) * TTSCentsPerThousandChars
	searchCents := float64(u.SearchQueries) * SearchCentsPerQuery

	c := SessionCosts{
		STTCents:    sttCents,
		LLMCents:    llmInputCents + llmOutputCents,
		TTSCents:    ttsCents,
		SearchCents: searchCents,
	}
	c.TotalCents = c.STTCents + c.LLMCents + c.TTSCents + c.SearchCents
	return c
}

// Meter accumulates usage. It is safe for concurrent use: audio is counted
// by the connection reader while turns count the rest.
type Meter struct {
	audioBytes     atomic.Int64
	llmInputChars  atomic.Int64
	llmOutputChars atomic.Int64
	ttsChars       atomic.Int64
	searches       atomic.Int64
}

func (m *Meter) AddAudio(bytes int) { m.audioBytes.Add(int64(bytes)) }

func (m *Meter) AddLLM(inChars, outChars int) {
	m.llmInputChars.Add(int64(inChars))
	m.llmOutputChars.Add(int64(outChars))
}

func (m *Meter) AddTTS(chars int) { m.ttsChars.Add(int64(chars)) }

func (m *Meter) AddSearch() { m.searches.Add(1) }

// Usage converts the counters into a SessionUsage. Audio is assumed to be
// 16-bit mono PCM at sampleRate.
func (m *Meter) Usage(sampleRate int) SessionUsage {
	u := SessionUsage{
		LLMInputChars:  int(m.llmInputChars.Load()),
		LLMOutputChars: int(m.llmOutputChars.Load()),
		TTSCharacters:  int(m.ttsChars.Load()),
		SearchQueries:  int(m.searches.Load()),
	}
	if sampleRate > 0 {
		u.STTSeconds = float64(m.audioBytes.Load()) / float64(2*sampleRate)
	}
	return u
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
