// Package lyrics finds songs matching a piece of transcribed lyrics.
package lyrics

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// ErrNotFound is returned when a search matches no song.
var ErrNotFound = errors.New("no matching song")

// Song is one search hit.
type Song struct {
	Title     string
	Artist    string
	URL       string
	Thumbnail string
}

// Display renders the song as "Artist - Title".
func (s Song) Display() string {
	if s.Artist == "" {
		return s.Title
	}
	return s.Artist + " - " + s.Title
}

// Searcher looks songs up by free text.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Song, error)
}

// Query builds a search query from the first maxWords words of a
// transcript, dropping punctuation search engines choke on.
func Query(transcript string, maxWords int) string {
	words := strings.FieldsFunc(transcript, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'')
	})
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
