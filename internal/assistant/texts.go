package assistant

// Texts are the canned replies used when a collaborator cannot produce one.
type Texts struct {
	LLMError        string `yaml:"llm_error"`
	TTSError        string `yaml:"tts_error"`
	STTError        string `yaml:"stt_error"`
	SearchError     string `yaml:"search_error"`
	DeviceError     string `yaml:"device_error"`
	NoDeviceCommand string `yaml:"no_device_command"`
	GeneralError    string `yaml:"general_error"`
	BrowserOpened   string `yaml:"browser_opened"`
}

// DefaultTexts returns the built-in replies.
func DefaultTexts() Texts {
	return Texts{
		LLMError:        "I'm having trouble connecting to my brain right now. Please try again in a moment.",
		TTSError:        "I'm having trouble speaking right now, but I can still help you with text responses.",
		STTError:        "I'm having trouble hearing you right now. Could you please try again?",
		SearchError:     "I couldn't search the web just now. Please try again in a moment.",
		DeviceError:     "I couldn't reach the light right now.",
		NoDeviceCommand: "I couldn't tell whether to turn the light on or off.",
		GeneralError:    "I'm experiencing some technical difficulties. Please try again later.",
		BrowserOpened:   "Sure, I've opened that for you.",
	}
}

// WithDefaults fills empty fields from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.LLMError, d.LLMError)
	fill(&t.TTSError, d.TTSError)
	fill(&t.STTError, d.STTError)
	fill(&t.SearchError, d.SearchError)
	fill(&t.DeviceError, d.DeviceError)
	fill(&t.NoDeviceCommand, d.NoDeviceCommand)
	fill(&t.GeneralError, d.GeneralError)
	fill(&t.BrowserOpened, d.BrowserOpened)
	return t
}
