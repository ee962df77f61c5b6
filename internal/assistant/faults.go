package assistant

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/device"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/search"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

// ErrSimulated is returned by a collaborator whose fault is switched on.
var ErrSimulated = errors.New("simulated failure")

// FaultServices lists the collaborators that accept simulated failures.
var FaultServices = []string{CollaboratorLLM, CollaboratorTTS, CollaboratorSearch, CollaboratorDevice, CollaboratorSTT}

// Faults holds switchable simulated failures, one per collaborator name.
type Faults struct {
	mu sync.RWMutex
	on map[string]bool
}

// NewFaults creates a set with every fault off.
func NewFaults() *Faults {
	return &Faults{on: make(map[string]bool)}
}

// Set switches the fault for service. Unknown services are rejected.
func (f *Faults) Set(service string, enabled bool) error {
	known := false
	for _, s := range FaultServices {
		if s == service {
			known = true
			break
		}
	}
	if !known {
		return errors.Errorf("unknown service %q", service)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on[service] = enabled
	return nil
}

// Enabled reports whether service currently fails. A nil *Faults never fails.
func (f *Faults) Enabled(service string) bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.on[service]
}

// Snapshot returns the services whose fault is on, sorted.
func (f *Faults) Snapshot() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.on))
	for s, on := range f.on {
		if on {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (f *Faults) check(service string) error {
	if f.Enabled(service) {
		return errors.Wrap(ErrSimulated, service)
	}
	return nil
}

// LLM wraps c so it fails while the llm fault is on. A nil c stays nil.
func (f *Faults) LLM(c llm.Client) llm.Client {
	if c == nil {
		return nil
	}
	return faultyLLM{f, c}
}

// TTS wraps c so it fails while the tts fault is on. A nil c stays nil.
func (f *Faults) TTS(c tts.Client) tts.Client {
	if c == nil {
		return nil
	}
	return faultyTTS{f, c}
}

// Searcher wraps s so web queries fail while the search fault is on. The
// enhancer around it still asks the model, with the failure in the prompt.
// A nil s stays nil.
func (f *Faults) Searcher(s search.Searcher) search.Searcher {
	if s == nil {
		return nil
	}
	return faultySearcher{f, s}
}

// Device wraps b so it fails while the device fault is on. A nil b stays nil.
func (f *Faults) Device(b device.Bridge) device.Bridge {
	if b == nil {
		return nil
	}
	return faultyDevice{f, b}
}

// STT wraps s so new streams fail to start while the stt fault is on.
func (f *Faults) STT(s stt.Starter) stt.Starter {
	if s == nil {
		return nil
	}
	return faultySTT{f, s}
}

type faultyLLM struct {
	f *Faults
	c llm.Client
}

func (w faultyLLM) Generate(ctx context.Context, msgs []llm.Message) (string, error) {
	if err := w.f.check(CollaboratorLLM); err != nil {
		return "", err
	}
	return w.c.Generate(ctx, msgs)
}

type faultyTTS struct {
	f *Faults
	c tts.Client
}

func (w faultyTTS) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if err := w.f.check(CollaboratorTTS); err != nil {
		return tts.Audio{}, err
	}
	return w.c.Synthesize(ctx, text)
}

type faultySearcher struct {
	f *Faults
	s search.Searcher
}

func (w faultySearcher) Search(ctx context.Context, query string, maxResults int) ([]search.Hit, error) {
	if err := w.f.check(CollaboratorSearch); err != nil {
		return nil, err
	}
	return w.s.Search(ctx, query, maxResults)
}

type faultyDevice struct {
	f *Faults
	b device.Bridge
}

func (w faultyDevice) Send(ctx context.Context, command string) (string, error) {
	if err := w.f.check(CollaboratorDevice); err != nil {
		return "", err
	}
	return w.b.Send(ctx, command)
}

type faultySTT struct {
	f *Faults
	s stt.Starter
}

func (w faultySTT) Start(ctx context.Context, sampleRate int) (stt.Stream, error) {
	if err := w.f.check(CollaboratorSTT); err != nil {
		return nil, err
	}
	return w.s.Start(ctx, sampleRate)
}
