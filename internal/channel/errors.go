package channel

import "errors"

var (
	// ErrNoChannel is returned by the dispatcher for a message addressed to
	// a channel it does not know.
	ErrNoChannel        = errors.New("channel: unknown channel")
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")
	// ErrNoInbox is returned when an update arrives before SetInbox.
	ErrNoInbox = errors.New("channel: inbox not set")
	// ErrFileTooLarge is returned by FetchMedia for files above the
	// platform download limit. The bot tells the user to send a shorter
	// recording.
	ErrFileTooLarge = errors.New("channel: file too large")
	ErrUnsupported  = errors.New("channel: operation not supported")
)
