package assistant

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lukasbauer/aria/internal/browser"
	"github.com/lukasbauer/aria/internal/device"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/tts"
)

// Enhancer answers a question with the help of a web search.
type Enhancer interface {
	Enhance(ctx context.Context, question string) (string, error)
}

// Collaborators are the downstream services a turn can use. They are shared
// by all sessions and must be safe for concurrent use.
type Collaborators struct {
	LLM     llm.Client
	TTS     tts.Client
	Search  Enhancer
	Device  device.Bridge
	Browser browser.Opener
}

// Result is the outcome of routing one utterance.
type Result struct {
	Kind      FrameKind // FrameAssistantText or FrameWebSearchOpened
	Text      string    // text to show and speak
	HasText   bool      // false when nothing could be attempted
	OpenedURL string
	Err       error // the recovered collaborator failure, if any

	LLMInputChars  int
	LLMOutputChars int
	Searched       bool
}

// Router invokes exactly one collaborator per utterance and turns every
// failure into a reply text.
type Router struct {
	c       Collaborators
	persona string
	texts   Texts
	metrics *Metrics
	log     zerolog.Logger
}

// NewRouter creates a Router. persona is the system prompt used when the
// caller's history has none.
func NewRouter(c Collaborators, persona string, texts Texts, metrics *Metrics, log zerolog.Logger) *Router {
	return &Router{
		c:       c,
		persona: persona,
		texts:   texts.WithDefaults(),
		metrics: metrics,
		log:     log.With().Str("component", "router").Logger(),
	}
}

// Texts returns the fallback texts in use.
func (r *Router) Texts() Texts { return r.texts }

// Route handles utterance according to in. history must already end with
// the utterance as a user message.
func (r *Router) Route(ctx context.Context, in intent.Intent, utterance string, history []llm.Message) Result {
	ctx, span := tracer.Start(ctx, "route", trace.WithAttributes(attribute.String("intent", string(in))))
	defer span.End()

	switch in {
	case intent.DeviceCommand:
		return r.device(ctx, utterance)
	case intent.NavigationCommand:
		if res, ok := r.navigate(ctx, utterance); ok {
			return res
		}
		span.AddEvent("no navigation target, answering generally")
		return r.generate(ctx, history)
	case intent.IdentityQuery:
		return r.generate(ctx, []llm.Message{r.system(history), {Role: llm.RoleUser, Content: utterance}})
	case intent.InformationQuery:
		return r.information(ctx, utterance)
	default:
		return r.generate(ctx, history)
	}
}

func (r *Router) device(ctx context.Context, utterance string) Result {
	res := Result{Kind: FrameAssistantText}
	if r.c.Device == nil {
		return r.recover(ctx, res, &CollaboratorError{CollaboratorDevice, ErrNotConfigured}, "")
	}
	text, err := r.call(ctx, CollaboratorDevice, func(ctx context.Context) (string, error) {
		return r.c.Device.Send(ctx, utterance)
	})
	if err != nil {
		fallback := r.texts.DeviceError
		var ce *device.CommandError
		switch {
		case errors.As(err, &ce):
			fallback = ce.Spoken()
		case errors.Is(err, device.ErrNoDeviceCommand):
			fallback = r.texts.NoDeviceCommand
		}
		return r.recover(ctx, res, err, fallback)
	}
	res.Text, res.HasText = text, true
	return res
}

func (r *Router) navigate(ctx context.Context, utterance string) (Result, bool) {
	if r.c.Browser == nil || ctx.Err() != nil {
		return Result{}, false
	}
	_, span := tracer.Start(ctx, "call "+CollaboratorBrowser)
	url, ok := r.c.Browser.TryOpen(ctx, utterance)
	span.SetAttributes(attribute.Bool("matched", ok), attribute.String("url", url))
	span.End()
	if !ok {
		return Result{}, false
	}
	return Result{
		Kind:      FrameWebSearchOpened,
		Text:      r.texts.BrowserOpened,
		HasText:   true,
		OpenedURL: url,
	}, true
}

func (r *Router) information(ctx context.Context, utterance string) Result {
	res := Result{Kind: FrameAssistantText}
	if r.c.Search == nil {
		return r.recover(ctx, res, &CollaboratorError{CollaboratorSearch, ErrNotConfigured}, "")
	}
	res.Searched = true
	res.LLMInputChars = len(utterance)
	text, err := r.call(ctx, CollaboratorSearch, func(ctx context.Context) (string, error) {
		return r.c.Search.Enhance(ctx, utterance)
	})
	if err != nil {
		return r.recover(ctx, res, err, r.texts.SearchError)
	}
	res.Text, res.HasText, res.LLMOutputChars = text, true, len(text)
	return res
}

func (r *Router) generate(ctx context.Context, msgs []llm.Message) Result {
	res := Result{Kind: FrameAssistantText}
	if r.c.LLM == nil {
		return r.recover(ctx, res, &CollaboratorError{CollaboratorLLM, ErrNotConfigured}, "")
	}
	for _, m := range msgs {
		res.LLMInputChars += len(m.Content)
	}
	text, err := r.call(ctx, CollaboratorLLM, func(ctx context.Context) (string, error) {
		return r.c.LLM.Generate(ctx, msgs)
	})
	if err != nil {
		return r.recover(ctx, res, err, r.texts.LLMError)
	}
	res.Text, res.HasText, res.LLMOutputChars = text, true, len(text)
	return res
}

// recover applies the fallback policy: no text when the call was not
// attempted or the turn was cancelled, the fallback text otherwise.
func (r *Router) recover(ctx context.Context, res Result, err error, fallback string) Result {
	res.Err = err
	if ctx.Err() != nil || NotAttempted(err) {
		res.Text, res.HasText = "", false
		res.LLMInputChars, res.Searched = 0, false
		return res
	}
	if fallback == "" {
		fallback = r.texts.GeneralError
	}
	res.Text, res.HasText = fallback, true
	return res
}

func (r *Router) call(ctx context.Context, name string, fn func(context.Context) (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &CollaboratorError{Collaborator: name, Err: err}
	}
	ctx, span := tracer.Start(ctx, "call "+name)
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !NotAttempted(err) && ctx.Err() == nil {
			r.metrics.collaboratorFailed(name)
			r.log.Warn().Err(err).Str("collaborator", name).Msg("collaborator call failed")
		}
		return "", &CollaboratorError{Collaborator: name, Err: err}
	}
	return out, nil
}

func (r *Router) system(history []llm.Message) llm.Message {
	if len(history) > 0 && history[0].Role == llm.RoleSystem {
		return history[0]
	}
	return llm.Message{Role: llm.RoleSystem, Content: r.persona}
}
