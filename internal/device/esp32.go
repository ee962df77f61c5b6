// Package device switches the LED on an ESP32 board over its HTTP API.
package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/intent"
)

var (
	// ErrNotConfigured is returned when no device address is set.
	ErrNotConfigured = errors.New("device: not configured")
	// ErrNoDeviceCommand is returned when the utterance names no on/off action.
	ErrNoDeviceCommand = errors.New("device: no on/off command in utterance")
)

// Bridge executes spoken device commands.
type Bridge interface {
	Send(ctx context.Context, command string) (string, error)
}

// CommandError is a failed switch attempt. It carries a message suitable to
// be read back to the user.
type CommandError struct {
	Switch intent.Switch
	Status int // HTTP status from the board, 0 if the request failed
	Err    error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("turn %s LED: %v", e.Switch, e.Err)
	}
	return fmt.Sprintf("turn %s LED: device returned status %d", e.Switch, e.Status)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Spoken is the user-facing description of the failure.
func (e *CommandError) Spoken() string {
	if e.Err != nil {
		return fmt.Sprintf("Failed to turn %s LED: %v", e.Switch, e.Err)
	}
	return fmt.Sprintf("Failed to turn %s LED (ESP32 error)", e.Switch)
}

// ESP32 talks to the board's /led/on and /led/off endpoints.
type ESP32 struct {
	baseURL    string
	httpClient *http.Client
}

// NewESP32 creates a bridge for the board at baseURL, e.g.
// "http://192.168.1.50". A bare host is accepted too.
func NewESP32(baseURL string, timeout time.Duration) *ESP32 {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ESP32{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send parses the switch direction from command and calls the board.
func (d *ESP32) Send(ctx context.Context, command string) (string, error) {
	if d.baseURL == "" {
		return "", ErrNotConfigured
	}
	sw, ok := intent.ParseSwitch(command)
	if !ok {
		return "", ErrNoDeviceCommand
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/led/"+string(sw), nil)
	if err != nil {
		return "", &CommandError{Switch: sw, Err: err}
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &CommandError{Switch: sw, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return "", &CommandError{Switch: sw, Status: resp.StatusCode}
	}
	return fmt.Sprintf("LED turned %s!", sw), nil
}
