package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/pipeline"
	"github.com/Ajirohack/echo/internal/storage"
)

// maxAudioUpload caps the multipart form size for translate requests.
const maxAudioUpload = 32 << 20

// Engine runs translation requests and reports its configuration. The
// pipeline satisfies it; tests substitute fakes.
type Engine interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Providers() []pipeline.StageProviders
	Languages() []string
	InFlight() int64
}

// TranslateHandler serves synchronous speech-to-speech translation.
type TranslateHandler struct {
	engine  Engine
	limiter pipeline.Limiter
	store   storage.AudioStore
	log     zerolog.Logger
}

// NewTranslateHandler creates the translate endpoint handler. The store
// may be nil, in which case responses carry only the inline audio.
func NewTranslateHandler(engine Engine, limiter pipeline.Limiter, store storage.AudioStore, log zerolog.Logger) *TranslateHandler {
	return &TranslateHandler{
		engine:  engine,
		limiter: limiter,
		store:   store,
		log:     log.With().Str("handler", "translate").Logger(),
	}
}

// Routes registers the translate endpoint.
func (h *TranslateHandler) Routes(r chi.Router) {
	r.Post("/translate", h.Translate)
}

// TranslateResponse is the reply for a completed translation.
type TranslateResponse struct {
	RequestID      string                 `json:"request_id"`
	SourceLang     string                 `json:"source_lang"`
	TargetLang     string                 `json:"target_lang"`
	Transcript     string                 `json:"transcript"`
	TranslatedText string                 `json:"translated_text"`
	AudioBase64    string                 `json:"audio_base64"`
	ContentType    string                 `json:"content_type"`
	AudioKey       string                 `json:"audio_key,omitempty"`
	AudioURL       string                 `json:"audio_url,omitempty"`
	Stages         []pipeline.StageResult `json:"stages"`
	ElapsedMs      int64                  `json:"elapsed_ms"`
}

// PipelineErrorResponse reports a failed translation: which stage broke,
// how the failure is classified, and the wall clock spent. Stage is
// empty when the run never reached a stage.
type PipelineErrorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	Kind      string `json:"kind"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Translate handles POST /api/v1/translate.
// Accepts a multipart form with an audio file and language pair, runs the
// full pipeline, and returns the synthesized audio inline as base64.
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("audio")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing audio file field")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	req := pipeline.Request{
		Audio:               audioData,
		SourceLang:          r.FormValue("source_lang"),
		TargetLang:          r.FormValue("target_lang"),
		STTProvider:         r.FormValue("stt_provider"),
		TranslationProvider: r.FormValue("translation_provider"),
		TTSProvider:         r.FormValue("tts_provider"),
	}

	result, err := h.engine.Process(r.Context(), req)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	resp := TranslateResponse{
		RequestID:      result.RequestID,
		SourceLang:     result.SourceLang,
		TargetLang:     result.TargetLang,
		Transcript:     result.Transcript,
		TranslatedText: result.TranslatedText,
		AudioBase64:    base64.StdEncoding.EncodeToString(result.Audio),
		ContentType:    result.ContentType,
		Stages:         result.Stages,
		ElapsedMs:      result.Elapsed.Milliseconds(),
	}

	// Persist the output so it survives past the response. A failed save
	// is not fatal; the client already has the audio inline.
	if h.store != nil {
		key := storage.BuildKey(result.SourceLang, result.TargetLang, result.RequestID, result.ContentType, time.Now())
		if err := h.store.Save(r.Context(), key, result.Audio, result.ContentType); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("output audio save failed")
		} else {
			resp.AudioKey = key
			if url, err := h.store.URL(r.Context(), key); err == nil && url != "" {
				resp.AudioURL = url
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// writePipelineError maps pipeline failure kinds onto HTTP statuses.
func (h *TranslateHandler) writePipelineError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		h.log.Error().Err(err).Msg("translation failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch perr.Kind {
	case pipeline.KindInvalidInput:
		status = http.StatusBadRequest
	case pipeline.KindRateLimited:
		status = http.StatusTooManyRequests
		if h.limiter != nil && perr.Stage != "" {
			if wait := time.Until(h.limiter.ResetAt(perr.Stage)); wait > 0 {
				secs := int64((wait + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			}
		}
	case pipeline.KindTimeout:
		status = http.StatusGatewayTimeout
	case pipeline.KindProviderFailure:
		status = http.StatusBadGateway
	}

	WriteJSON(w, status, PipelineErrorResponse{
		Error:     perr.Error(),
		Stage:     string(perr.Stage),
		Kind:      string(perr.Kind),
		ElapsedMs: perr.Elapsed.Milliseconds(),
	})
}
