package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/aria/internal/assistant"
	"github.com/lukasbauer/aria/internal/browser"
	"github.com/lukasbauer/aria/internal/device"
	"github.com/lukasbauer/aria/internal/eventlog"
	"github.com/lukasbauer/aria/internal/httpapi"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/search"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

type App struct {
	cfg        Config
	logger     zerolog.Logger
	httpClient *http.Client // shared by the HTTP provider clients
	deps       assistant.Deps
	stt        stt.Starter
	faults     *assistant.Faults
	sessions   *httpapi.SessionRegistry
	configured map[string]bool
}

// New validates cfg and builds every provider client. A provider without
// credentials is left unset; turns that need it end without a reply.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Keeps TCP connections alive to reduce latency for repeated provider calls.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		httpClient: httpClient,
		faults:     assistant.NewFaults(),
		sessions:   httpapi.NewSessionRegistry(),
		configured: make(map[string]bool, len(assistant.FaultServices)),
	}

	starter := a.newSTT()
	llmClient, err := a.newLLM(ctx)
	if err != nil {
		return nil, err
	}
	ttsClient := a.newTTS()

	persona := llm.PersonaPrompt(cfg.AssistantName, cfg.SystemPrompt)
	var enhancer assistant.Enhancer
	if llmClient != nil {
		enhancer = search.NewEnhancer(a.faults.Searcher(a.newSearcher()), a.faults.LLM(llmClient), search.EnhancerConfig{
			SystemPrompt: persona,
			MaxResults:   cfg.SearchMaxResults,
			Logger:       logger,
		})
	}
	a.configured[assistant.CollaboratorSearch] = enhancer != nil

	var bridge device.Bridge
	if cfg.DeviceBaseURL != "" {
		bridge = device.NewESP32(cfg.DeviceBaseURL, cfg.DeviceTimeout)
	}
	a.configured[assistant.CollaboratorDevice] = bridge != nil

	classifier := intent.NewClassifier(cfg.AssistantName, cfg.ExtraSites)
	opener := browser.New(classifier, browser.ParseMode(cfg.BrowserMode), logger)
	metrics := assistant.NewMetrics("aria")

	c := assistant.Collaborators{
		LLM:     a.faults.LLM(llmClient),
		TTS:     a.faults.TTS(ttsClient),
		Search:  enhancer,
		Device:  a.faults.Device(bridge),
		Browser: opener,
	}
	a.stt = a.faults.STT(starter)
	a.deps = assistant.Deps{
		Classifier:      classifier,
		Router:          assistant.NewRouter(c, persona, cfg.Texts, metrics, logger),
		TTS:             c.TTS,
		Metrics:         metrics,
		Events:          eventlog.New(logger),
		Logger:          logger,
		SystemPrompt:    persona,
		HistoryMax:      cfg.HistoryMaxMessages,
		AudioChunkBytes: cfg.AudioChunkBytes,
	}

	logger.Info().
		Str("stt", cfg.STTProvider).
		Str("llm", cfg.LLMProvider).
		Str("tts", cfg.TTSProvider).
		Str("search", cfg.SearchProvider).
		Interface("configured", a.configured).
		Msg("providers initialised")
	return a, nil
}

func (a *App) newSTT() stt.Starter {
	var s stt.Starter
	switch a.cfg.STTProvider {
	case "deepgram":
		if a.cfg.DeepgramAPIKey != "" {
			s = stt.NewDeepgram(stt.DeepgramConfig{
				APIKey:         a.cfg.DeepgramAPIKey,
				Language:       a.cfg.STTLanguage,
				Model:          "nova-3",
				Encoding:       "linear16",
				Channels:       1,
				Punctuate:      true,
				Endpointing:    a.cfg.STTEndpointingMs,
				UtteranceEndMs: 1000,
				Logger:         a.logger,
			})
		}
	default:
		if a.cfg.AssemblyAIAPIKey != "" {
			s = stt.NewAssemblyAI(stt.AssemblyAIConfig{
				APIKey:      a.cfg.AssemblyAIAPIKey,
				Encoding:    "pcm_s16le",
				FormatTurns: a.cfg.STTFormatTurns,
				Logger:      a.logger,
			})
		}
	}
	a.configured[assistant.CollaboratorSTT] = s != nil
	return s
}

func (a *App) newLLM(ctx context.Context) (llm.Client, error) {
	var c llm.Client
	switch a.cfg.LLMProvider {
	case "openai":
		if a.cfg.OpenAIAPIKey != "" {
			c = llm.NewOpenAIClient(llm.OpenAIConfig{
				APIKey:         a.cfg.OpenAIAPIKey,
				Model:          a.cfg.OpenAIModel,
				MaxPromptChars: a.cfg.LLMMaxPromptChars,
				HTTPClient:     a.httpClient,
			})
		}
	default:
		if a.cfg.GeminiAPIKey != "" {
			g, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
				APIKey:         a.cfg.GeminiAPIKey,
				Model:          a.cfg.GeminiModel,
				MaxPromptChars: a.cfg.LLMMaxPromptChars,
				HTTPClient:     a.httpClient,
			})
			if err != nil {
				return nil, errors.Wrap(err, "create gemini client")
			}
			c = g
		}
	}
	a.configured[assistant.CollaboratorLLM] = c != nil
	return c, nil
}

func (a *App) newTTS() tts.Client {
	var c tts.Client
	switch a.cfg.TTSProvider {
	case "elevenlabs":
		if a.cfg.ElevenLabsAPIKey != "" {
			c = tts.NewElevenLabsClient(tts.ElevenLabsConfig{
				APIKey:     a.cfg.ElevenLabsAPIKey,
				VoiceID:    a.cfg.TTSVoiceID,
				Stability:  a.cfg.TTSStability,
				Similarity: a.cfg.TTSSimilarity,
				MaxChars:   a.cfg.TTSMaxChars,
				HTTPClient: a.httpClient,
			})
		}
	default:
		if a.cfg.MurfAPIKey != "" {
			c = tts.NewMurfClient(tts.MurfConfig{
				APIKey:     a.cfg.MurfAPIKey,
				VoiceID:    a.cfg.MurfVoiceID,
				Format:     "MP3",
				MaxChars:   a.cfg.TTSMaxChars,
				HTTPClient: a.httpClient,
			})
		}
	}
	a.configured[assistant.CollaboratorTTS] = c != nil
	return c
}

func (a *App) newSearcher() search.Searcher {
	if a.cfg.SearchProvider == "tavily" && a.cfg.TavilyAPIKey != "" {
		return search.NewTavily(a.cfg.TavilyAPIKey, "", a.httpClient)
	}
	return search.NewDuckDuckGo("", a.httpClient)
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret:         a.cfg.JWTSecret,
		AdminAPIKey:       a.cfg.AdminAPIKey,
		DefaultSampleRate: a.cfg.STTSampleRate,
		Configured:        a.configured,
	}
	return httpapi.NewRouter(routerCfg, httpapi.Services{
		Deps:     a.deps,
		STT:      a.stt,
		Faults:   a.faults,
		Sessions: a.sessions,
	}, a.logger)
}

// Sessions is the registry of live voice sessions, used for draining.
func (a *App) Sessions() *httpapi.SessionRegistry { return a.sessions }

// Configured reports which collaborators have credentials.
func (a *App) Configured() map[string]bool { return a.configured }

func (a *App) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
