// Package audio holds boundary helpers for audio payloads: container
// detection from magic bytes and on-disk file resolution for
// file-referencing jobs.
package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format describes an audio container.
type Format struct {
	Ext         string
	ContentType string
}

// Detect sniffs the audio container from magic bytes. Unknown data maps
// to a generic binary format; vendors that need a real container reject
// it themselves.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return Format{Ext: "wav", ContentType: "audio/wav"}
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return Format{Ext: "mp3", ContentType: "audio/mpeg"}
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// Bare MPEG frame sync, no ID3 header
		return Format{Ext: "mp3", ContentType: "audio/mpeg"}
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return Format{Ext: "ogg", ContentType: "audio/ogg"}
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("fLaC")):
		return Format{Ext: "flac", ContentType: "audio/flac"}
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return Format{Ext: "m4a", ContentType: "audio/mp4"}
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Format{Ext: "webm", ContentType: "audio/webm"}
	}
	return Format{Ext: "bin", ContentType: "application/octet-stream"}
}

var extFormats = map[string]Format{
	"wav":  {Ext: "wav", ContentType: "audio/wav"},
	"mp3":  {Ext: "mp3", ContentType: "audio/mpeg"},
	"ogg":  {Ext: "ogg", ContentType: "audio/ogg"},
	"flac": {Ext: "flac", ContentType: "audio/flac"},
	"m4a":  {Ext: "m4a", ContentType: "audio/mp4"},
	"mp4":  {Ext: "mp4", ContentType: "audio/mp4"},
	"webm": {Ext: "webm", ContentType: "audio/webm"},
}

// ForExt maps a file extension (with or without the dot) to its format.
func ForExt(ext string) Format {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if f, ok := extFormats[ext]; ok {
		return f
	}
	return Format{Ext: ext, ContentType: "application/octet-stream"}
}

// ContentType returns the MIME type for an audio filename.
func ContentType(filename string) string {
	return ForExt(filepath.Ext(filename)).ContentType
}

var contentTypeExts = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/ogg":   "ogg",
	"audio/flac":  "flac",
	"audio/mp4":   "m4a",
	"audio/webm":  "webm",
}

// ExtForContentType maps a MIME type back to a file extension. Unknown
// types map to "bin".
func ExtForContentType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if ext, ok := contentTypeExts[strings.TrimSpace(strings.ToLower(contentType))]; ok {
		return ext
	}
	return "bin"
}
