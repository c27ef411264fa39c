// Package transcribe defines speech-to-text backends and a failover chain
// across them.
package transcribe

import (
	"context"
	"errors"
	"time"
)

// Audio is one recording to transcribe.
type Audio struct {
	Data     []byte
	MIMEType string
	FileName string

	// Language is an ISO 639-1 hint. Empty lets the backend detect it.
	Language string
}

// Transcript is the result of a transcription.
type Transcript struct {
	Text     string
	Language string
	Duration time.Duration

	// Provider names the backend that produced the text. Set by Chain.
	Provider string
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}

var (
	// ErrUnsupportedAudio is returned for containers a backend cannot decode.
	ErrUnsupportedAudio = errors.New("unsupported audio format")

	// ErrEmptyTranscript is returned when no speech was recognized.
	ErrEmptyTranscript = errors.New("no speech recognized")

	// ErrNoTranscriber is returned by a chain without backends.
	ErrNoTranscriber = errors.New("no transcriber configured")

	// ErrAllFailed is returned when every backend failed.
	ErrAllFailed = errors.New("all transcribers failed")
)

// Source is implemented by modules that contribute a backend to the
// transcription chain.
type Source interface {
	TranscribeEntry() Entry
}
