package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/provider"
)

type fakeSTT struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, language string) (*provider.Transcription, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Transcription{Text: f.text, Language: language}, nil
}

func (f *fakeSTT) Name() string { return f.name }

type fakeTranslator struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls atomic.Int64

	mu         sync.Mutex
	lastText   string
	lastSource string
	lastTarget string
}

func (f *fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (*provider.Translation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastText, f.lastSource, f.lastTarget = text, sourceLang, targetLang
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Translation{Text: f.text}, nil
}

func (f *fakeTranslator) Name() string { return f.name }

type fakeTTS struct {
	name  string
	audio []byte
	err   error
	delay time.Duration
	calls atomic.Int64

	mu       sync.Mutex
	lastText string
	lastLang string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, language string) (*provider.Synthesis, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastText, f.lastLang = text, language
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Synthesis{Audio: f.audio}, nil
}

func (f *fakeTTS) Name() string { return f.name }

// happyFakes returns a registry of instantly succeeding backends plus the
// fakes themselves for call inspection.
func happyFakes() (Registry, *fakeSTT, *fakeTranslator, *fakeTTS) {
	stt := &fakeSTT{name: "whisper", text: "Hello, how are you?"}
	tr := &fakeTranslator{name: "deepl", text: "Bonjour, comment allez-vous ?"}
	tts := &fakeTTS{name: "elevenlabs", audio: []byte("mp3-bytes")}
	reg := Registry{
		STT:          map[string]provider.SpeechToText{stt.name: stt},
		Translators:  map[string]provider.Translator{tr.name: tr},
		Synthesizers: map[string]provider.SpeechSynthesizer{tts.name: tts},
	}
	return reg, stt, tr, tts
}

func defaultSelections(opts Options) Options {
	if opts.STT.Preferred == "" {
		opts.STT.Preferred = "whisper"
	}
	if opts.Translation.Preferred == "" {
		opts.Translation.Preferred = "deepl"
	}
	if opts.TTS.Preferred == "" {
		opts.TTS.Preferred = "elevenlabs"
	}
	return opts
}

func newTestPipeline(t *testing.T, reg Registry, lim Limiter, opts Options) *Pipeline {
	t.Helper()
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"en", "fr", "es"}
	}
	opts = defaultSelections(opts)
	p, err := New(reg, lim, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func testRequest() Request {
	return Request{Audio: []byte("wav-bytes"), SourceLang: "en", TargetLang: "fr"}
}

func TestProcessSuccess(t *testing.T) {
	reg, _, tr, tts := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	res, err := p.Process(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Transcript != "Hello, how are you?" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if res.TranslatedText != "Bonjour, comment allez-vous ?" {
		t.Errorf("TranslatedText = %q", res.TranslatedText)
	}
	if !bytes.Equal(res.Audio, []byte("mp3-bytes")) {
		t.Errorf("Audio = %q", res.Audio)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("ContentType = %q, want audio/mpeg default", res.ContentType)
	}
	if res.RequestID == "" {
		t.Error("RequestID not assigned")
	}

	// Data flows forward: the translator saw the transcript, the
	// synthesizer saw the translation in the target language.
	if tr.lastText != "Hello, how are you?" || tr.lastSource != "en" || tr.lastTarget != "fr" {
		t.Errorf("translator saw (%q, %s→%s)", tr.lastText, tr.lastSource, tr.lastTarget)
	}
	if tts.lastText != "Bonjour, comment allez-vous ?" || tts.lastLang != "fr" {
		t.Errorf("synthesizer saw (%q, %s)", tts.lastText, tts.lastLang)
	}

	if len(res.Stages) != 3 {
		t.Fatalf("Stages len = %d, want 3", len(res.Stages))
	}
	for i, want := range Stages {
		got := res.Stages[i]
		if got.Stage != want {
			t.Errorf("Stages[%d] = %s, want %s", i, got.Stage, want)
		}
		if got.Attempts != 1 {
			t.Errorf("%s attempts = %d, want 1", want, got.Attempts)
		}
		if got.Elapsed < 0 {
			t.Errorf("%s elapsed = %v, want >= 0", want, got.Elapsed)
		}
		if got.Fallback {
			t.Errorf("%s marked fallback on a preferred-backend run", want)
		}
	}
	if res.Elapsed > 4*time.Second {
		t.Errorf("Elapsed = %v, want within the 4s budget", res.Elapsed)
	}
}

func TestProcessCaseInsensitiveLanguages(t *testing.T) {
	reg, _, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	req := testRequest()
	req.SourceLang = "EN"
	req.TargetLang = " Fr "
	res, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.SourceLang != "en" || res.TargetLang != "fr" {
		t.Errorf("languages = %s→%s, want en→fr normalized", res.SourceLang, res.TargetLang)
	}
}

func TestProcessUnsupportedLanguage(t *testing.T) {
	reg, stt, tr, tts := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	for _, req := range []Request{
		{Audio: []byte("x"), SourceLang: "xx", TargetLang: "fr"},
		{Audio: []byte("x"), SourceLang: "en", TargetLang: "xx"},
	} {
		_, err := p.Process(context.Background(), req)
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want *Error", err)
		}
		if perr.Kind != KindInvalidInput {
			t.Errorf("Kind = %v, want invalid_input", perr.Kind)
		}
		if perr.Stage != "" {
			t.Errorf("Stage = %q, want empty for validation failure", perr.Stage)
		}
	}

	if n := stt.calls.Load() + tr.calls.Load() + tts.calls.Load(); n != 0 {
		t.Errorf("backends called %d times, want 0 for invalid input", n)
	}
}

func TestProcessEmptyAudio(t *testing.T) {
	reg, stt, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	_, err := p.Process(context.Background(), Request{SourceLang: "en", TargetLang: "fr"})
	if KindOf(err) != KindInvalidInput {
		t.Errorf("error = %v, want invalid_input", err)
	}
	if stt.calls.Load() != 0 {
		t.Error("backend called for empty audio")
	}
}

func TestProcessUnknownProviderOverride(t *testing.T) {
	reg, stt, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	req := testRequest()
	req.STTProvider = "nonexistent"
	_, err := p.Process(context.Background(), req)
	if KindOf(err) != KindInvalidInput {
		t.Errorf("error = %v, want invalid_input", err)
	}
	if stt.calls.Load() != 0 {
		t.Error("backend called despite unknown override")
	}
}

func TestProcessFallbackSuccess(t *testing.T) {
	reg, _, _, _ := happyFakes()
	backup := &fakeSTT{name: "deepinfra", text: "Hello, how are you?"}
	reg.STT["broken"] = &fakeSTT{name: "broken", err: provider.Failure("broken", errors.New("503"))}
	reg.STT[backup.name] = backup

	p := newTestPipeline(t, reg, nil, Options{
		STT: Selection{Preferred: "broken", Fallback: "deepinfra"},
	})

	res, err := p.Process(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	sttRes := res.StageFor(StageSTT)
	if sttRes == nil {
		t.Fatal("no stt stage result")
	}
	if sttRes.Provider != "deepinfra" {
		t.Errorf("Provider = %q, want deepinfra (the fallback)", sttRes.Provider)
	}
	if !sttRes.Fallback {
		t.Error("Fallback = false, want true")
	}
	// Two attempts against the broken backend, one against the fallback.
	if sttRes.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", sttRes.Attempts)
	}
}

func TestProcessNoFallbackConfigured(t *testing.T) {
	reg, _, tr, tts := happyFakes()
	reg.STT["whisper"] = &fakeSTT{name: "whisper", err: provider.Failure("whisper", errors.New("503"))}

	p := newTestPipeline(t, reg, nil, Options{})

	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Stage != StageSTT || perr.Kind != KindProviderFailure {
		t.Errorf("failure = %s/%s, want stt/provider_failure", perr.Stage, perr.Kind)
	}

	var serr *StageError
	if !errors.As(err, &serr) {
		t.Fatal("pipeline error should wrap the stage error")
	}
	if serr.Provider != "whisper" {
		t.Errorf("StageError.Provider = %q, want whisper", serr.Provider)
	}

	if tr.calls.Load() != 0 || tts.calls.Load() != 0 {
		t.Error("later stages ran after an aborted stage")
	}
}

func TestProcessInvalidInputTerminal(t *testing.T) {
	reg, _, _, _ := happyFakes()
	backup := &fakeSTT{name: "deepinfra", text: "nope"}
	reg.STT["whisper"] = &fakeSTT{name: "whisper", err: provider.InvalidInput("whisper", "corrupt audio")}
	reg.STT[backup.name] = backup

	p := newTestPipeline(t, reg, nil, Options{
		STT: Selection{Preferred: "whisper", Fallback: "deepinfra"},
	})

	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Stage != StageSTT || perr.Kind != KindInvalidInput {
		t.Errorf("failure = %s/%s, want stt/invalid_input", perr.Stage, perr.Kind)
	}
	if backup.calls.Load() != 0 {
		t.Error("fallback tried after invalid input")
	}
}

func TestProcessStageTimeout(t *testing.T) {
	reg, _, _, _ := happyFakes()
	reg.STT["whisper"] = &fakeSTT{name: "whisper", text: "late", delay: 300 * time.Millisecond}

	p := newTestPipeline(t, reg, nil, Options{STTCeiling: 30 * time.Millisecond})

	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Stage != StageSTT || perr.Kind != KindTimeout {
		t.Errorf("failure = %s/%s, want stt/timeout", perr.Stage, perr.Kind)
	}
}

func TestProcessTimeoutFallbackWithinBudget(t *testing.T) {
	reg, _, _, _ := happyFakes()
	backup := &fakeSTT{name: "deepinfra", text: "Hello, how are you?"}
	reg.STT["slow"] = &fakeSTT{name: "slow", text: "late", delay: 300 * time.Millisecond}
	reg.STT[backup.name] = backup

	p := newTestPipeline(t, reg, nil, Options{
		STTCeiling: 30 * time.Millisecond,
		STT:        Selection{Preferred: "slow", Fallback: "deepinfra"},
	})

	res, err := p.Process(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sttRes := res.StageFor(StageSTT)
	if sttRes.Provider != "deepinfra" || !sttRes.Fallback {
		t.Errorf("stage result = %+v, want fallback deepinfra", sttRes)
	}
}

func TestProcessTimeoutNoFallbackWhenBudgetGone(t *testing.T) {
	reg, _, _, _ := happyFakes()
	backup := &fakeSTT{name: "deepinfra", text: "nope"}
	reg.STT["slow"] = &fakeSTT{name: "slow", text: "late", delay: 500 * time.Millisecond}
	reg.STT[backup.name] = backup

	// The whole budget is gone when the preferred backend times out, so
	// the fallback must not be started.
	p := newTestPipeline(t, reg, nil, Options{
		TotalBudget: 60 * time.Millisecond,
		STTCeiling:  time.Second,
		STT:         Selection{Preferred: "slow", Fallback: "deepinfra"},
	})

	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Kind != KindTimeout {
		t.Errorf("Kind = %v, want timeout", perr.Kind)
	}
	if backup.calls.Load() != 0 {
		t.Error("fallback started with no budget left")
	}
}

func TestProcessRateLimited(t *testing.T) {
	reg, stt, _, _ := happyFakes()
	p := newTestPipeline(t, reg, &fakeLimiter{budget: 0}, Options{})

	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Stage != StageSTT || perr.Kind != KindRateLimited {
		t.Errorf("failure = %s/%s, want stt/rate_limited", perr.Stage, perr.Kind)
	}
	if stt.calls.Load() != 0 {
		t.Error("backend called after rate-limit denial")
	}
}

// The fallback backend draws from the same per-stage window, so an
// exhausted window denies it too.
func TestProcessFallbackSharesStageWindow(t *testing.T) {
	reg, _, _, _ := happyFakes()
	backup := &fakeSTT{name: "deepinfra", text: "nope"}
	reg.STT["broken"] = &fakeSTT{name: "broken", err: provider.Failure("broken", errors.New("503"))}
	reg.STT[backup.name] = backup

	lim := NewWindowLimiter(Limits{STT: 2, Translation: 50, TTS: 20, Window: time.Minute})
	p := newTestPipeline(t, reg, lim, Options{
		STT: Selection{Preferred: "broken", Fallback: "deepinfra"},
	})

	// Both window slots are burned by the preferred backend's attempt and
	// retry; the fallback is denied admission.
	_, err := p.Process(context.Background(), testRequest())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if perr.Stage != StageSTT || perr.Kind != KindRateLimited {
		t.Errorf("failure = %s/%s, want stt/rate_limited", perr.Stage, perr.Kind)
	}
	if backup.calls.Load() != 0 {
		t.Error("fallback called without window capacity")
	}
}

func TestProcessIdempotentPayloads(t *testing.T) {
	reg, _, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	first, err := p.Process(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := p.Process(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if first.Transcript != second.Transcript ||
		first.TranslatedText != second.TranslatedText ||
		!bytes.Equal(first.Audio, second.Audio) {
		t.Error("identical requests against deterministic backends produced different payloads")
	}
}

func TestProcessConcurrentRequests(t *testing.T) {
	reg, _, _, _ := happyFakes()
	p := newTestPipeline(t, reg, NewWindowLimiter(Limits{STT: 100, Translation: 100, TTS: 100, Window: time.Minute}), Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Process(context.Background(), testRequest()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Process: %v", err)
	}
}

func TestRunStagePipelineLevelTimeout(t *testing.T) {
	reg, stt, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	_, _, perr := runStage(ctx, p, zerolog.Nop(), time.Now(), StageSTT, Selection{Preferred: "whisper"},
		func(name string) func(context.Context) (*provider.Transcription, error) {
			backend := p.reg.STT[name]
			return func(c context.Context) (*provider.Transcription, error) {
				return backend.Transcribe(c, []byte("x"), "en")
			}
		})

	if perr == nil || perr.Kind != KindTimeout {
		t.Fatalf("error = %v, want timeout", perr)
	}
	if perr.Stage != "" {
		t.Errorf("Stage = %q, want empty for a pipeline-level timeout", perr.Stage)
	}
	if stt.calls.Load() != 0 {
		t.Error("stage started with no budget left")
	}
}

func TestFallbackEligible(t *testing.T) {
	tests := []struct {
		name      string
		kind      ErrorKind
		remaining time.Duration
		want      bool
	}{
		{"invalid_input_never", KindInvalidInput, time.Second, false},
		{"provider_failure", KindProviderFailure, time.Second, true},
		{"rate_limited", KindRateLimited, time.Second, true},
		{"timeout_with_budget", KindTimeout, time.Second, true},
		{"timeout_without_budget", KindTimeout, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackEligible(tt.kind, tt.remaining); got != tt.want {
				t.Errorf("fallbackEligible(%v, %v) = %v, want %v", tt.kind, tt.remaining, got, tt.want)
			}
		})
	}
}

func TestNewValidatesSelections(t *testing.T) {
	reg, _, _, _ := happyFakes()

	t.Run("unknown_preferred", func(t *testing.T) {
		_, err := New(reg, nil, defaultSelections(Options{
			Languages: []string{"en", "fr"},
			STT:       Selection{Preferred: "nonexistent"},
		}), zerolog.Nop())
		if err == nil || !strings.Contains(err.Error(), "nonexistent") {
			t.Errorf("err = %v, want unknown provider error", err)
		}
	})

	t.Run("unknown_fallback", func(t *testing.T) {
		_, err := New(reg, nil, defaultSelections(Options{
			Languages: []string{"en", "fr"},
			TTS:       Selection{Preferred: "elevenlabs", Fallback: "nonexistent"},
		}), zerolog.Nop())
		if err == nil {
			t.Error("expected error for unknown fallback")
		}
	})

	t.Run("no_languages", func(t *testing.T) {
		_, err := New(reg, nil, defaultSelections(Options{}), zerolog.Nop())
		if err == nil {
			t.Error("expected error for empty language set")
		}
	})

	t.Run("missing_selection", func(t *testing.T) {
		_, err := New(reg, nil, Options{Languages: []string{"en"}}, zerolog.Nop())
		if err == nil {
			t.Error("expected error when a stage has no provider")
		}
	})
}

func TestProviders(t *testing.T) {
	reg, _, _, _ := happyFakes()
	reg.STT["deepinfra"] = &fakeSTT{name: "deepinfra"}
	p := newTestPipeline(t, reg, nil, Options{
		STT: Selection{Preferred: "whisper", Fallback: "deepinfra"},
	})

	provs := p.Providers()
	if len(provs) != 3 {
		t.Fatalf("Providers len = %d, want 3", len(provs))
	}
	if provs[0].Stage != StageSTT || provs[0].Preferred != "whisper" || provs[0].Fallback != "deepinfra" {
		t.Errorf("stt providers = %+v", provs[0])
	}
	if len(provs[0].Available) != 2 || provs[0].Available[0] != "deepinfra" {
		t.Errorf("stt available = %v, want sorted [deepinfra whisper]", provs[0].Available)
	}
}

func TestLanguagesNormalized(t *testing.T) {
	reg, _, _, _ := happyFakes()
	p := newTestPipeline(t, reg, nil, Options{Languages: []string{"EN", " fr", "en", ""}})

	langs := p.Languages()
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "fr" {
		t.Errorf("Languages = %v, want [en fr]", langs)
	}
}
