package assistant

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/device"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/search"
	"github.com/lukasbauer/aria/internal/tts"
)

// Collaborator names used in errors, logs and metrics.
const (
	CollaboratorLLM     = "llm"
	CollaboratorTTS     = "tts"
	CollaboratorSearch  = "search"
	CollaboratorDevice  = "device"
	CollaboratorBrowser = "browser"
	CollaboratorSTT     = "stt"
)

// ErrNotConfigured is returned for a collaborator that was never wired.
var ErrNotConfigured = errors.New("assistant: collaborator not configured")

var errEmptyAudio = errors.New("synthesis returned no audio")

// CollaboratorError is a failed downstream call.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NotAttempted reports whether err means the call was never made because the
// collaborator lacks configuration.
func NotAttempted(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, llm.ErrNotConfigured) ||
		errors.Is(err, tts.ErrNotConfigured) ||
		errors.Is(err, search.ErrNotConfigured) ||
		errors.Is(err, device.ErrNotConfigured)
}
