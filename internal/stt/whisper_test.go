package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ajirohack/echo/internal/provider"
)

func wavBytes() []byte {
	return []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
}

func TestWhisperTranscribe(t *testing.T) {
	var gotPath, gotModel, gotLang, gotFormat, gotFile, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		if f, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" Hello, how are you? ","language":"en","duration":1.5}`))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "sk-test", "whisper-1", 5*time.Second)
	got, err := wc.Transcribe(context.Background(), wavBytes(), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got.Text != "Hello, how are you?" {
		t.Errorf("Text = %q, want trimmed transcript", got.Text)
	}
	if got.Language != "en" || got.Duration != 1.5 {
		t.Errorf("Language/Duration = %s/%v", got.Language, got.Duration)
	}
	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-1" || gotLang != "en" || gotFormat != "verbose_json" {
		t.Errorf("form = model %q, language %q, response_format %q", gotModel, gotLang, gotFormat)
	}
	if gotFile != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav from sniffed container", gotFile)
	}
}

func TestWhisperNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "", "", 5*time.Second)
	if _, err := wc.Transcribe(context.Background(), wavBytes(), "en"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want none for self-hosted servers", gotAuth)
	}
}

func TestWhisperErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   provider.Kind
	}{
		{"bad_request", http.StatusBadRequest, provider.KindInvalidInput},
		{"server_error", http.StatusInternalServerError, provider.KindFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer srv.Close()

			wc := NewWhisperClient(srv.URL, "k", "whisper-1", 5*time.Second)
			_, err := wc.Transcribe(context.Background(), wavBytes(), "en")

			var perr *provider.Error
			if !errors.As(err, &perr) {
				t.Fatalf("error = %v, want *provider.Error", err)
			}
			if perr.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", perr.Kind, tt.want)
			}
			if perr.Status != tt.status {
				t.Errorf("Status = %d, want %d", perr.Status, tt.status)
			}
		})
	}
}

func TestWhisperContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "k", "whisper-1", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := wc.Transcribe(ctx, wavBytes(), "en")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped deadline exceeded", err)
	}
}
