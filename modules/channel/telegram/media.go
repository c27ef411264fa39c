package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/pkg/message"
)

// FetchMedia implements channel.MediaFetcher. The announced size is checked
// before getFile and again after, and the download itself is capped.
func (t *Telegram) FetchMedia(ctx context.Context, block message.ContentBlock, maxBytes int64) ([]byte, error) {
	fileID, ok := strings.CutPrefix(block.URL, fileIDPrefix)
	if !ok {
		return nil, fmt.Errorf("telegram: not a telegram file reference: %q", block.URL)
	}
	if block.Size > maxBytes {
		return nil, channel.ErrFileTooLarge
	}

	file, err := t.client.GetFile(ctx, fileID)
	if err != nil {
		// The Bot API refuses getFile above its own 20 MB limit.
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "file is too big") {
			return nil, channel.ErrFileTooLarge
		}
		return nil, fmt.Errorf("telegram: getFile: %w", err)
	}
	if file.FileSize > maxBytes {
		return nil, channel.ErrFileTooLarge
	}

	data, err := t.client.Download(ctx, file.FilePath, maxBytes)
	if errors.Is(err, errDownloadTooLarge) {
		return nil, channel.ErrFileTooLarge
	}
	return data, err
}
