package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestTruncateMessages(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: strings.Repeat("s", 10)},
		{Role: RoleUser, Content: strings.Repeat("a", 10)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 10)},
		{Role: RoleUser, Content: strings.Repeat("c", 10)},
	}

	t.Run("fits", func(t *testing.T) {
		assert.Equal(t, msgs, TruncateMessages(msgs, 40))
	})

	t.Run("drops oldest non-system", func(t *testing.T) {
		got := TruncateMessages(msgs, 30)
		require.Len(t, got, 3)
		assert.Equal(t, RoleSystem, got[0].Role)
		assert.Equal(t, RoleAssistant, got[1].Role)
		assert.Equal(t, RoleUser, got[2].Role)
		// The input is untouched.
		assert.Len(t, msgs, 4)
	})

	t.Run("cuts the last message", func(t *testing.T) {
		got := TruncateMessages(msgs, 15)
		require.Len(t, got, 2)
		assert.Equal(t, "cc...", got[1].Content)
	})
}

func TestPersonaPrompt(t *testing.T) {
	p := PersonaPrompt("", "")
	assert.Contains(t, p, "You are Aria")
	assert.Contains(t, p, spokenStyle)

	p = PersonaPrompt("Jarvis", "You are Jarvis, a butler.")
	assert.True(t, strings.HasPrefix(p, "You are Jarvis, a butler."))
	assert.Contains(t, p, spokenStyle)
}

func TestSearchPrompt(t *testing.T) {
	p := SearchPrompt("who is the mayor", "Jane Doe | City Hall")
	assert.Equal(t, "User question: who is the mayor\nWeb search summary: Jane Doe | City Hall\nAnswer the user's question, using the web info if helpful:", p)
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), GeminiConfig{})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "how are you"},
	})

	assert.Equal(t, "persona", system)
	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}
