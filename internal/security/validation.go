package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Payload limits applied when PayloadLimits fields are zero. Telegram
// updates are a few kilobytes and nest less than ten levels.
const (
	DefaultMaxPayloadSize = 1 << 20
	DefaultMaxJSONDepth   = 32
)

// Payload errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bound an inbound webhook body.
type PayloadLimits struct {
	MaxSize  int
	MaxDepth int
}

func (l PayloadLimits) withDefaults() PayloadLimits {
	if l.MaxSize <= 0 {
		l.MaxSize = DefaultMaxPayloadSize
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxJSONDepth
	}
	return l
}

// ReadPayload reads a JSON body from r. It stops reading one byte past
// MaxSize and rejects bodies that are empty, malformed or nested deeper
// than MaxDepth.
func ReadPayload(r io.Reader, limits PayloadLimits) ([]byte, error) {
	limits = limits.withDefaults()

	body, err := io.ReadAll(io.LimitReader(r, int64(limits.MaxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if len(body) > limits.MaxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limits.MaxSize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	if err := checkDepth(body, limits.MaxDepth); err != nil {
		return nil, err
	}
	return body, nil
}

// checkDepth walks the tokens of data without decoding values.
func checkDepth(data []byte, limit int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			if depth++; depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
