package assistant

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/search"
)

func TestRouter_RecoveryPolicy(t *testing.T) {
	tests := []struct {
		name        string
		in          intent.Intent
		setup       func(h *harness)
		wantText    string
		wantHasText bool
		wantFailed  string
	}{
		{"llm ok", intent.GeneralQuery, func(*harness) {}, "Here is an answer.", true, ""},
		{"llm error", intent.GeneralQuery, func(h *harness) { h.llm.err = errors.New("boom") }, DefaultTexts().LLMError, true, CollaboratorLLM},
		{"llm missing", intent.GeneralQuery, func(h *harness) { h.llm = nil }, "", false, ""},
		{"search error", intent.InformationQuery, func(h *harness) { h.search.err = errors.New("boom") }, DefaultTexts().SearchError, true, CollaboratorSearch},
		{"search missing key", intent.InformationQuery, func(h *harness) { h.search.err = search.ErrNotConfigured }, "", false, ""},
		{"device missing", intent.DeviceCommand, func(h *harness) { h.device = nil }, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			metrics := NewMetrics("test")
			r := NewRouter(h.collaborators(), testPersona, Texts{}, metrics, zerolog.Nop())

			history := []llm.Message{{Role: llm.RoleSystem, Content: testPersona}, {Role: llm.RoleUser, Content: "hello"}}
			res := r.Route(context.Background(), tt.in, "hello", history)

			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, tt.wantHasText, res.HasText)
			assert.Equal(t, FrameAssistantText, res.Kind)
			if tt.wantFailed != "" {
				var ce *CollaboratorError
				require.ErrorAs(t, res.Err, &ce)
				assert.Equal(t, tt.wantFailed, ce.Collaborator)
				assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollaboratorErrors.WithLabelValues(tt.wantFailed)))
			}
		})
	}
}

func TestRouter_CountsUsage(t *testing.T) {
	h := newHarness()
	r := NewRouter(h.collaborators(), testPersona, DefaultTexts(), nil, zerolog.Nop())

	res := r.Route(context.Background(), intent.GeneralQuery, "hi", []llm.Message{
		{Role: llm.RoleSystem, Content: "abc"},
		{Role: llm.RoleUser, Content: "hi"},
	})
	assert.Equal(t, 5, res.LLMInputChars)
	assert.Equal(t, len("Here is an answer."), res.LLMOutputChars)
	assert.False(t, res.Searched)

	res = r.Route(context.Background(), intent.InformationQuery, "why?", nil)
	assert.True(t, res.Searched)
}

func TestRouter_IdentityWithoutSystemMessage(t *testing.T) {
	h := newHarness()
	r := NewRouter(h.collaborators(), testPersona, DefaultTexts(), nil, zerolog.Nop())

	r.Route(context.Background(), intent.IdentityQuery, "what is your name", nil)
	calls := h.llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.RoleSystem, calls[0][0].Role)
	assert.Equal(t, testPersona, calls[0][0].Content)
}
