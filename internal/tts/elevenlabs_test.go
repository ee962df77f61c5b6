package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewElevenLabsClient_DefaultValues(t *testing.T) {
	// -1 selects defaults since 0.0 is a valid setting.
	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		Stability:  -1,
		Similarity: -1,
	})

	assert.Equal(t, "21m00Tcm4TlvDq8ikWAM", client.voiceID)
	assert.Equal(t, "eleven_flash_v2_5", client.modelID)
	assert.Equal(t, 0.5, client.stability)
	assert.Equal(t, 0.75, client.similarity)
	assert.Equal(t, DefaultMaxChars, client.maxChars)
}

func TestNewElevenLabsClient_ZeroStability(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", Stability: 0, Similarity: 0.9})
	assert.Equal(t, 0.0, client.stability)
	assert.Equal(t, 0.9, client.similarity)
}

func TestElevenLabsClient_Synthesize(t *testing.T) {
	var got elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:   "test-key",
		VoiceID:  "voice-1",
		BaseURL:  srv.URL,
		MaxChars: 10,
	})

	audio, err := client.Synthesize(context.Background(), strings.Repeat("a", 50))
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-audio"), audio.Data)
	assert.Equal(t, "audio/mpeg", audio.MimeType)
	assert.Equal(t, "aaaaaaa...", got.Text)
}

func TestElevenLabsClient_Errors(t *testing.T) {
	_, err := NewElevenLabsClient(ElevenLabsConfig{}).Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err = NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}).Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad voice")
}

func TestChunk(t *testing.T) {
	data := []byte("abcdefg")

	assert.Nil(t, Chunk(nil, 3))
	assert.Equal(t, [][]byte{data}, Chunk(data, 0))
	assert.Equal(t, [][]byte{data}, Chunk(data, 100))
	assert.Equal(t, [][]byte{[]byte("abc"), []byte("def"), []byte("g")}, Chunk(data, 3))
}
