package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/textutil"
)

const murfAPIURL = "https://api.murf.ai/v1/speech/generate"

// MurfConfig holds configuration for the Murf client.
type MurfConfig struct {
	APIKey     string
	VoiceID    string // e.g. "en-US-natalie"
	Format     string // MP3 or WAV
	BaseURL    string
	MaxChars   int
	HTTPClient *http.Client
}

// MurfClient implements Client on Murf's generate endpoint. Murf answers with
// a link to the rendered file, which is then downloaded.
type MurfClient struct {
	apiKey     string
	voiceID    string
	format     string
	url        string
	maxChars   int
	httpClient *http.Client
}

// NewMurfClient creates a new Murf client.
func NewMurfClient(cfg MurfConfig) *MurfClient {
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = "en-US-natalie"
	}
	format := strings.ToUpper(cfg.Format)
	if format == "" {
		format = "MP3"
	}
	url := cfg.BaseURL
	if url == "" {
		url = murfAPIURL
	}
	maxChars := cfg.MaxChars
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MurfClient{
		apiKey:     cfg.APIKey,
		voiceID:    voiceID,
		format:     format,
		url:        url,
		maxChars:   maxChars,
		httpClient: httpClient,
	}
}

type murfRequest struct {
	VoiceID string `json:"voiceId"`
	Text    string `json:"text"`
	Format  string `json:"format"`
}

type murfResponse struct {
	AudioFile    string `json:"audioFile"`
	EncodedAudio string `json:"encodedAudio"`
}

// Synthesize renders text with the configured voice.
func (c *MurfClient) Synthesize(ctx context.Context, text string) (Audio, error) {
	if c.apiKey == "" {
		return Audio{}, ErrNotConfigured
	}

	body, err := json.Marshal(murfRequest{
		VoiceID: c.voiceID,
		Text:    textutil.Truncate(text, c.maxChars),
		Format:  c.format,
	})
	if err != nil {
		return Audio{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Audio{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Audio{}, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Audio{}, errors.Errorf("Murf API error: %s - %s", resp.Status, string(respBody))
	}

	var mr murfResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return Audio{}, errors.Wrap(err, "decode response")
	}

	var data []byte
	switch {
	case mr.EncodedAudio != "":
		data, err = base64.StdEncoding.DecodeString(mr.EncodedAudio)
		if err != nil {
			return Audio{}, errors.Wrap(err, "decode audio")
		}
	case mr.AudioFile != "":
		data, err = c.download(ctx, mr.AudioFile)
		if err != nil {
			return Audio{}, err
		}
	default:
		return Audio{}, errors.New("Murf response has no audio")
	}

	return Audio{Data: data, MimeType: c.mimeType()}, nil
}

func (c *MurfClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download audio: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read audio")
	}
	if len(data) == 0 {
		return nil, errors.New("downloaded audio is empty")
	}
	return data, nil
}

func (c *MurfClient) mimeType() string {
	if c.format == "WAV" {
		return "audio/wav"
	}
	return "audio/mpeg"
}
