package llm

import "fmt"

// DefaultPersonaName is used when no assistant name is configured.
const DefaultPersonaName = "Aria"

// spokenStyle is appended to every persona prompt because replies are read
// aloud.
const spokenStyle = `Your replies are converted to speech. Answer in one to three short sentences of plain text.
Do not use markdown, lists, links or emoji.`

// PersonaPrompt returns the system prompt for an assistant called name. A
// custom prompt replaces the default introduction but keeps the speaking
// style rules.
func PersonaPrompt(name, custom string) string {
	if name == "" {
		name = DefaultPersonaName
	}
	intro := custom
	if intro == "" {
		intro = fmt.Sprintf(`You are %s, a friendly voice assistant. When asked who you are or what your name is, say that you are %s, a voice assistant that can answer questions, search the web, open websites and switch the light on or off.`, name, name)
	}
	return intro + "\n\n" + spokenStyle
}

// SearchPrompt builds the question sent to the model together with a web
// search summary.
func SearchPrompt(question, summary string) string {
	return fmt.Sprintf("User question: %s\nWeb search summary: %s\nAnswer the user's question, using the web info if helpful:", question, summary)
}
