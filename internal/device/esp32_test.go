package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbauer/aria/internal/intent"
)

func TestESP32_Send(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewESP32(srv.URL+"/", time.Second)

	got, err := d.Send(context.Background(), "turn on the led")
	require.NoError(t, err)
	assert.Equal(t, "LED turned on!", got)

	got, err = d.Send(context.Background(), "Light off please")
	require.NoError(t, err)
	assert.Equal(t, "LED turned off!", got)

	assert.Equal(t, []string{"/led/on", "/led/off"}, paths)
}

func TestESP32_DeviceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewESP32(srv.URL, time.Second).Send(context.Background(), "turn on the light")

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, intent.SwitchOn, ce.Switch)
	assert.Equal(t, http.StatusInternalServerError, ce.Status)
	assert.Equal(t, "Failed to turn on LED (ESP32 error)", ce.Spoken())
}

func TestESP32_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewESP32(url, time.Second).Send(context.Background(), "switch off the led")

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, intent.SwitchOff, ce.Switch)
	assert.Contains(t, ce.Spoken(), "Failed to turn off LED: ")
}

func TestESP32_NotAttempted(t *testing.T) {
	_, err := NewESP32("", 0).Send(context.Background(), "turn on the led")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewESP32("10.0.0.2", 0).Send(context.Background(), "what's up")
	assert.ErrorIs(t, err, ErrNoDeviceCommand)
}

func TestNewESP32_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://10.0.0.2", NewESP32("10.0.0.2", 0).baseURL)
	assert.Equal(t, "https://lamp.local", NewESP32("https://lamp.local/", 0).baseURL)
}
