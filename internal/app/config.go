package app

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lukasbauer/aria/internal/assistant"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	SentryDSN   string
	Environment string

	// Speech recognition
	STTProvider      string // assemblyai or deepgram
	AssemblyAIAPIKey string
	DeepgramAPIKey   string
	STTSampleRate    int
	STTLanguage      string
	STTEndpointingMs int
	STTFormatTurns   bool // AssemblyAI: finalize on the punctuated transcript

	// Language model
	LLMProvider       string // gemini or openai
	GeminiAPIKey      string
	GeminiModel       string
	OpenAIAPIKey      string
	OpenAIModel       string
	LLMMaxPromptChars int

	// Speech synthesis
	TTSProvider      string // murf or elevenlabs
	MurfAPIKey       string
	MurfVoiceID      string
	ElevenLabsAPIKey string
	TTSVoiceID       string // ElevenLabs voice ID
	TTSStability     float64
	TTSSimilarity    float64
	TTSMaxChars      int
	AudioChunkBytes  int

	// Web search
	SearchProvider   string // duckduckgo or tavily
	TavilyAPIKey     string
	SearchMaxResults int

	// Device and browser
	DeviceBaseURL string
	DeviceTimeout time.Duration
	BrowserMode   string // server or client

	// Persona
	AssistantName      string
	SystemPrompt       string
	HistoryMaxMessages int
	ExtraSites         map[string]string
	Texts              assistant.Texts

	// Access control
	JWTSecret   string
	AdminAPIKey string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		STTProvider:      strings.ToLower(getenv("STT_PROVIDER", "assemblyai")),
		AssemblyAIAPIKey: getenv("ASSEMBLYAI_API_KEY", ""),
		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		STTSampleRate:    getenvIntClamped("STT_SAMPLE_RATE", assistant.DefaultSampleRate, 8000, 48000),
		STTLanguage:      getenv("STT_LANGUAGE", "en-US"),
		STTEndpointingMs: getenvIntClamped("STT_ENDPOINTING_MS", 800, 10, 5000),
		STTFormatTurns:   getenvBool("STT_FORMAT_TURNS", true),

		LLMProvider:       strings.ToLower(getenv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:      getenv("GEMINI_API_KEY", ""),
		GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:      getenv("OPENAI_API_KEY", ""),
		OpenAIModel:       getenv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMMaxPromptChars: getenvIntClamped("LLM_MAX_PROMPT_CHARS", 10000, 500, 1000000),

		TTSProvider:      strings.ToLower(getenv("TTS_PROVIDER", "murf")),
		MurfAPIKey:       getenv("MURF_API_KEY", ""),
		MurfVoiceID:      getenv("MURF_VOICE_ID", "en-US-natalie"),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),
		TTSVoiceID:       getenv("TTS_VOICE_ID", ""),
		TTSStability:     getenvFloatClamped("TTS_STABILITY", 0.5, 0, 1),
		TTSSimilarity:    getenvFloatClamped("TTS_SIMILARITY", 0.75, 0, 1),
		TTSMaxChars:      getenvIntClamped("TTS_MAX_CHARS", 5000, 100, 100000),
		AudioChunkBytes:  getenvIntClamped("AUDIO_CHUNK_BYTES", assistant.DefaultAudioChunkBytes, 1024, 1<<20),

		SearchProvider:   strings.ToLower(getenv("SEARCH_PROVIDER", "duckduckgo")),
		TavilyAPIKey:     getenv("TAVILY_API_KEY", ""),
		SearchMaxResults: getenvIntClamped("SEARCH_MAX_RESULTS", 3, 1, 10),

		DeviceBaseURL: getenv("DEVICE_BASE_URL", ""),
		DeviceTimeout: getenvDuration("DEVICE_TIMEOUT", 2*time.Second),
		BrowserMode:   strings.ToLower(getenv("BROWSER_MODE", "client")),

		AssistantName:      getenv("ASSISTANT_NAME", "Aria"),
		SystemPrompt:       getenv("SYSTEM_PROMPT", ""),
		HistoryMaxMessages: getenvIntClamped("HISTORY_MAX_MESSAGES", assistant.DefaultHistoryMax, 0, 1000),
		Texts:              assistant.DefaultTexts(),

		JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error
// unless required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

// fileConfig is the optional YAML overlay.
type fileConfig struct {
	AssistantName      string            `yaml:"assistant_name"`
	SystemPrompt       string            `yaml:"system_prompt"`
	HistoryMaxMessages *int              `yaml:"history_max_messages"`
	Sites              map[string]string `yaml:"sites"`
	Texts              assistant.Texts   `yaml:"texts"`
}

// ApplyFile overlays persona settings from a YAML file. Keys present in the
// file win over the environment.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}

	if fc.AssistantName != "" {
		c.AssistantName = fc.AssistantName
	}
	if fc.SystemPrompt != "" {
		c.SystemPrompt = fc.SystemPrompt
	}
	if fc.HistoryMaxMessages != nil {
		if *fc.HistoryMaxMessages < 0 {
			return errors.Errorf("config %s: history_max_messages must not be negative", path)
		}
		c.HistoryMaxMessages = *fc.HistoryMaxMessages
	}
	if len(fc.Sites) > 0 {
		if c.ExtraSites == nil {
			c.ExtraSites = make(map[string]string, len(fc.Sites))
		}
		for name, u := range fc.Sites {
			c.ExtraSites[name] = u
		}
	}

	t := fc.Texts
	for _, f := range []struct{ dst, src *string }{
		{&c.Texts.LLMError, &t.LLMError},
		{&c.Texts.TTSError, &t.TTSError},
		{&c.Texts.STTError, &t.STTError},
		{&c.Texts.SearchError, &t.SearchError},
		{&c.Texts.DeviceError, &t.DeviceError},
		{&c.Texts.NoDeviceCommand, &t.NoDeviceCommand},
		{&c.Texts.GeneralError, &t.GeneralError},
		{&c.Texts.BrowserOpened, &t.BrowserOpened},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped returns an integer env var clamped to [min, max], or def
// when unset or invalid.
func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// getenvFloatClamped returns a float env var clamped to [min, max], or def
// when unset or invalid.
func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate rejects unknown provider names. Missing credentials are allowed.
func (c Config) Validate() error {
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"STT_PROVIDER", c.STTProvider, []string{"assemblyai", "deepgram"}},
		{"LLM_PROVIDER", c.LLMProvider, []string{"gemini", "openai"}},
		{"TTS_PROVIDER", c.TTSProvider, []string{"murf", "elevenlabs"}},
		{"SEARCH_PROVIDER", c.SearchProvider, []string{"duckduckgo", "tavily"}},
		{"BROWSER_MODE", c.BrowserMode, []string{"client", "server"}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allowed, ch.value) {
			return errors.Errorf("%s: unknown value %q (want one of %s)", ch.key, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	return nil
}
