// Package bot turns inbound chat updates into transcription and language
// model jobs and replies with the result. Updates go through a bounded inbox
// into a fixed worker pool; updates of one chat are processed one at a time.
package bot

import "errors"

var (
	// ErrInboxFull is returned by Submit when the inbox is at capacity.
	ErrInboxFull = errors.New("bot: inbox full, update dropped")

	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("bot: stopped")

	// ErrNoTranscriber is returned by New without a transcriber.
	ErrNoTranscriber = errors.New("bot: no transcriber configured")

	// ErrNoOutbox is returned by New without an outbox.
	ErrNoOutbox = errors.New("bot: no outbox configured")

	// ErrUnknownMode is returned for a mode name absent from the config.
	ErrUnknownMode = errors.New("bot: unknown mode")
)
