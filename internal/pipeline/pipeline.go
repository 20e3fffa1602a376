package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/metrics"
	"github.com/Ajirohack/echo/internal/provider"
)

// Registry maps backend identifiers to constructed adapters per stage.
type Registry struct {
	STT          map[string]provider.SpeechToText
	Translators  map[string]provider.Translator
	Synthesizers map[string]provider.SpeechSynthesizer
}

func (r Registry) has(stage Stage, name string) bool {
	switch stage {
	case StageSTT:
		_, ok := r.STT[name]
		return ok
	case StageTranslation:
		_, ok := r.Translators[name]
		return ok
	case StageTTS:
		_, ok := r.Synthesizers[name]
		return ok
	}
	return false
}

// Names returns the registered backend identifiers for a stage, sorted.
func (r Registry) Names(stage Stage) []string {
	var names []string
	switch stage {
	case StageSTT:
		for name := range r.STT {
			names = append(names, name)
		}
	case StageTranslation:
		for name := range r.Translators {
			names = append(names, name)
		}
	case StageTTS:
		for name := range r.Synthesizers {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Selection names the preferred backend for a stage and, optionally, the
// single fallback tried when the preferred one fails.
type Selection struct {
	Preferred string
	Fallback  string
}

// Options configures a Pipeline. Zero durations fall back to the stock
// budgets: 4s end-to-end, 1s STT, 500ms translation, 1.5s TTS.
type Options struct {
	Languages []string

	TotalBudget        time.Duration
	STTCeiling         time.Duration
	TranslationCeiling time.Duration
	TTSCeiling         time.Duration

	STT         Selection
	Translation Selection
	TTS         Selection
}

// Pipeline runs speech-to-speech translation requests. Safe for
// concurrent use; in-flight requests share only the rate limiter.
type Pipeline struct {
	reg      Registry
	limiter  Limiter
	opts     Options
	langSet  map[string]struct{}
	langList []string
	inflight atomic.Int64
	log      zerolog.Logger
}

// New validates the configured backend selections against the registry
// and returns a ready pipeline.
func New(reg Registry, lim Limiter, opts Options, log zerolog.Logger) (*Pipeline, error) {
	if opts.TotalBudget <= 0 {
		opts.TotalBudget = 4 * time.Second
	}
	if opts.STTCeiling <= 0 {
		opts.STTCeiling = time.Second
	}
	if opts.TranslationCeiling <= 0 {
		opts.TranslationCeiling = 500 * time.Millisecond
	}
	if opts.TTSCeiling <= 0 {
		opts.TTSCeiling = 1500 * time.Millisecond
	}
	if lim == nil {
		lim = NewWindowLimiter(DefaultLimits)
	}

	langSet := make(map[string]struct{}, len(opts.Languages))
	langList := make([]string, 0, len(opts.Languages))
	for _, lang := range opts.Languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, dup := langSet[lang]; dup {
			continue
		}
		langSet[lang] = struct{}{}
		langList = append(langList, lang)
	}
	if len(langList) == 0 {
		return nil, fmt.Errorf("no supported languages configured")
	}

	p := &Pipeline{
		reg:      reg,
		limiter:  lim,
		opts:     opts,
		langSet:  langSet,
		langList: langList,
		log:      log.With().Str("component", "pipeline").Logger(),
	}

	for _, stage := range Stages {
		sel := p.staticSelection(stage)
		if sel.Preferred == "" {
			return nil, fmt.Errorf("no %s provider configured", stage)
		}
		if !reg.has(stage, sel.Preferred) {
			return nil, fmt.Errorf("unknown %s provider %q (configured: %v)", stage, sel.Preferred, reg.Names(stage))
		}
		if sel.Fallback != "" && !reg.has(stage, sel.Fallback) {
			return nil, fmt.Errorf("unknown %s fallback %q (configured: %v)", stage, sel.Fallback, reg.Names(stage))
		}
	}

	return p, nil
}

// Process runs one request through STT, translation, and synthesis. It
// returns a complete *Result or a *Error naming the failing stage, the
// error kind, and cumulative elapsed time. Synchronous from the caller's
// perspective; the end-to-end deadline doubles as the cancellation signal
// for in-flight backend calls.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := p.log.With().Str("request_id", req.ID).Logger()

	source, target, verr := p.validate(req, started)
	if verr != nil {
		metrics.PipelineRequests.WithLabelValues(string(KindInvalidInput)).Inc()
		log.Warn().Err(verr.Cause).Msg("request rejected")
		return nil, verr
	}

	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	ctx, cancel := context.WithDeadline(ctx, started.Add(p.opts.TotalBudget))
	defer cancel()

	log.Debug().
		Str("source", source).
		Str("target", target).
		Int("audio_bytes", len(req.Audio)).
		Msg("pipeline started")

	fail := func(perr *Error) (*Result, error) {
		metrics.PipelineRequests.WithLabelValues(string(perr.Kind)).Inc()
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
		where := "pipeline"
		if perr.Stage != "" {
			where = string(perr.Stage)
		}
		log.Error().
			Str("stage", where).
			Str("kind", string(perr.Kind)).
			Dur("elapsed", perr.Elapsed).
			Err(perr.Cause).
			Msg("pipeline aborted")
		return nil, perr
	}

	// 1. Speech to text
	transcription, sttRes, perr := runStage(ctx, p, log, started, StageSTT, p.selection(StageSTT, req),
		func(name string) func(context.Context) (*provider.Transcription, error) {
			backend := p.reg.STT[name]
			return func(c context.Context) (*provider.Transcription, error) {
				return backend.Transcribe(c, req.Audio, source)
			}
		})
	if perr != nil {
		return fail(perr)
	}

	// 2. Translation
	translation, trRes, perr := runStage(ctx, p, log, started, StageTranslation, p.selection(StageTranslation, req),
		func(name string) func(context.Context) (*provider.Translation, error) {
			backend := p.reg.Translators[name]
			return func(c context.Context) (*provider.Translation, error) {
				return backend.Translate(c, transcription.Text, source, target)
			}
		})
	if perr != nil {
		return fail(perr)
	}

	// 3. Speech synthesis
	synthesis, ttsRes, perr := runStage(ctx, p, log, started, StageTTS, p.selection(StageTTS, req),
		func(name string) func(context.Context) (*provider.Synthesis, error) {
			backend := p.reg.Synthesizers[name]
			return func(c context.Context) (*provider.Synthesis, error) {
				return backend.Synthesize(c, translation.Text, target)
			}
		})
	if perr != nil {
		return fail(perr)
	}

	elapsed := time.Since(started)
	metrics.PipelineRequests.WithLabelValues("success").Inc()
	metrics.PipelineDuration.Observe(elapsed.Seconds())

	contentType := synthesis.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	log.Info().
		Str("source", source).
		Str("target", target).
		Str("stt", sttRes.Provider).
		Str("translation", trRes.Provider).
		Str("tts", ttsRes.Provider).
		Dur("elapsed", elapsed).
		Int("audio_bytes", len(synthesis.Audio)).
		Msg("pipeline complete")

	return &Result{
		RequestID:      req.ID,
		SourceLang:     source,
		TargetLang:     target,
		Transcript:     transcription.Text,
		TranslatedText: translation.Text,
		Audio:          synthesis.Audio,
		ContentType:    contentType,
		Stages:         []StageResult{sttRes, trRes, ttsRes},
		Elapsed:        elapsed,
	}, nil
}

// runStage executes one stage: boundary check, preferred backend, then at
// most one fallback backend when the failure kind allows it.
func runStage[T any](ctx context.Context, p *Pipeline, log zerolog.Logger, started time.Time, stage Stage, sel Selection, bind func(name string) func(context.Context) (T, error)) (T, StageResult, *Error) {
	var zero T

	// Boundary check: never start a stage that cannot possibly complete.
	if budgetLeft(ctx) <= 0 {
		return zero, StageResult{}, &Error{
			Kind:    KindTimeout,
			Elapsed: time.Since(started),
			Cause:   context.DeadlineExceeded,
		}
	}

	ceiling := p.ceiling(stage)
	stageStart := time.Now()

	record := func(name string, from time.Time, serr *StageError) {
		outcome := "success"
		if serr != nil {
			outcome = string(serr.Kind)
		}
		metrics.StageRequests.WithLabelValues(string(stage), name, outcome).Inc()
		metrics.StageDuration.WithLabelValues(string(stage), name).Observe(time.Since(from).Seconds())
	}

	val, attempts, serr := runProvider(ctx, p.limiter, stage, sel.Preferred, ceiling, bind(sel.Preferred))
	record(sel.Preferred, stageStart, serr)
	if serr == nil {
		res := StageResult{Stage: stage, Provider: sel.Preferred, Attempts: attempts, Elapsed: time.Since(stageStart)}
		log.Debug().
			Str("stage", string(stage)).
			Str("provider", res.Provider).
			Int("attempts", res.Attempts).
			Dur("elapsed", res.Elapsed).
			Msg("stage complete")
		return val, res, nil
	}

	if sel.Fallback != "" && fallbackEligible(serr.Kind, budgetLeft(ctx)) {
		log.Warn().
			Str("stage", string(stage)).
			Str("provider", sel.Preferred).
			Str("fallback", sel.Fallback).
			Err(serr.Cause).
			Msg("stage failed, trying fallback")
		metrics.StageFallbacks.WithLabelValues(string(stage)).Inc()

		fbStart := time.Now()
		fval, fattempts, fserr := runProvider(ctx, p.limiter, stage, sel.Fallback, ceiling, bind(sel.Fallback))
		record(sel.Fallback, fbStart, fserr)
		attempts += fattempts
		if fserr == nil {
			res := StageResult{Stage: stage, Provider: sel.Fallback, Attempts: attempts, Elapsed: time.Since(stageStart), Fallback: true}
			log.Debug().
				Str("stage", string(stage)).
				Str("provider", res.Provider).
				Int("attempts", res.Attempts).
				Dur("elapsed", res.Elapsed).
				Msg("stage complete on fallback")
			return fval, res, nil
		}
		serr = fserr
	}

	return zero, StageResult{}, &Error{
		Stage:   stage,
		Kind:    serr.Kind,
		Elapsed: time.Since(started),
		Cause:   serr,
	}
}

// fallbackEligible reports whether a stage may try its fallback backend
// after the preferred one failed. Invalid input is terminal, and a
// timeout only leaves room for a fallback while end-to-end budget
// remains.
func fallbackEligible(kind ErrorKind, remaining time.Duration) bool {
	switch kind {
	case KindInvalidInput:
		return false
	case KindTimeout:
		return remaining > 0
	default:
		return true
	}
}

func (p *Pipeline) validate(req Request, started time.Time) (string, string, *Error) {
	fail := func(format string, args ...any) *Error {
		return &Error{
			Kind:    KindInvalidInput,
			Elapsed: time.Since(started),
			Cause:   fmt.Errorf(format, args...),
		}
	}

	if len(req.Audio) == 0 {
		return "", "", fail("empty audio payload")
	}
	source := strings.ToLower(strings.TrimSpace(req.SourceLang))
	target := strings.ToLower(strings.TrimSpace(req.TargetLang))
	if _, ok := p.langSet[source]; !ok {
		return "", "", fail("unsupported source language %q", req.SourceLang)
	}
	if _, ok := p.langSet[target]; !ok {
		return "", "", fail("unsupported target language %q", req.TargetLang)
	}
	for _, stage := range Stages {
		if sel := p.selection(stage, req); !p.reg.has(stage, sel.Preferred) {
			return "", "", fail("unknown %s provider %q", stage, sel.Preferred)
		}
	}
	return source, target, nil
}

func (p *Pipeline) staticSelection(stage Stage) Selection {
	switch stage {
	case StageSTT:
		return p.opts.STT
	case StageTranslation:
		return p.opts.Translation
	case StageTTS:
		return p.opts.TTS
	}
	return Selection{}
}

// selection resolves the backends for a stage, applying any per-request
// override. An override replaces the preferred backend; a fallback equal
// to the preferred one is dropped.
func (p *Pipeline) selection(stage Stage, req Request) Selection {
	sel := p.staticSelection(stage)
	var override string
	switch stage {
	case StageSTT:
		override = req.STTProvider
	case StageTranslation:
		override = req.TranslationProvider
	case StageTTS:
		override = req.TTSProvider
	}
	if override != "" {
		sel.Preferred = override
	}
	if sel.Fallback == sel.Preferred {
		sel.Fallback = ""
	}
	return sel
}

func (p *Pipeline) ceiling(stage Stage) time.Duration {
	switch stage {
	case StageSTT:
		return p.opts.STTCeiling
	case StageTranslation:
		return p.opts.TranslationCeiling
	case StageTTS:
		return p.opts.TTSCeiling
	}
	return 0
}

// StageProviders describes the backend configuration for one stage.
type StageProviders struct {
	Stage     Stage    `json:"stage"`
	Preferred string   `json:"preferred"`
	Fallback  string   `json:"fallback,omitempty"`
	Available []string `json:"available"`
}

// Providers reports the configured backends per stage.
func (p *Pipeline) Providers() []StageProviders {
	out := make([]StageProviders, 0, len(Stages))
	for _, stage := range Stages {
		sel := p.staticSelection(stage)
		out = append(out, StageProviders{
			Stage:     stage,
			Preferred: sel.Preferred,
			Fallback:  sel.Fallback,
			Available: p.reg.Names(stage),
		})
	}
	return out
}

// Languages returns the supported language codes in configured order.
func (p *Pipeline) Languages() []string {
	return append([]string(nil), p.langList...)
}

// InFlight reports how many requests are currently being processed.
func (p *Pipeline) InFlight() int64 {
	return p.inflight.Load()
}
