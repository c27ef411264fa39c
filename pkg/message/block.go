package message

import "strings"

// ContentBlock is a flat union representing one piece of content inside a
// message. The Type field discriminates which fields are meaningful.
type ContentBlock struct {
	Type     BlockType `json:"type"`
	Text     string    `json:"text,omitempty"`
	URL      string    `json:"url,omitempty"`
	MIMEType string    `json:"mime_type,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Caption  string    `json:"caption,omitempty"`
	IsVoice  bool      `json:"is_voice,omitempty"`
	// Size in bytes as announced by the platform. Zero when unknown.
	Size int64 `json:"size,omitempty"`
	// Duration in seconds, audio only.
	Duration int `json:"duration,omitempty"`
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewAudioBlock creates an audio content block. Set isVoice to true for voice messages.
func NewAudioBlock(url, mimeType string, isVoice bool) ContentBlock {
	return ContentBlock{Type: BlockAudio, URL: url, MIMEType: mimeType, IsVoice: isVoice}
}

// NewFileBlock creates a file content block.
func NewFileBlock(url, mimeType, fileName string) ContentBlock {
	return ContentBlock{Type: BlockFile, URL: url, MIMEType: mimeType, FileName: fileName}
}

// IsAudio reports whether the block carries audio: an audio block, or a file
// whose MIME type is audio/*.
func (b ContentBlock) IsAudio() bool {
	switch b.Type {
	case BlockAudio:
		return true
	case BlockFile:
		return strings.HasPrefix(b.MIMEType, "audio/")
	}
	return false
}

func textContent(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func hasMedia(blocks []ContentBlock) bool {
	for _, b := range blocks {
		if b.Type == BlockAudio || b.Type == BlockFile {
			return true
		}
	}
	return false
}
