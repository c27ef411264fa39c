package telegram

import "strings"

// markdownV2Escaper escapes every character Telegram MarkdownV2 reserves.
var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`,
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

// codeEscaper escapes the two characters that stay special inside code.
var codeEscaper = strings.NewReplacer("`", "\\`", `\`, `\\`)

// EscapeMarkdownV2 escapes all special characters for Telegram MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}

// FormatMarkdownV2 converts the markdown language models usually emit into
// Telegram MarkdownV2: **bold**, __underline__, `code`, fenced blocks and
// "# headings" (rendered bold). Everything else is escaped.
func FormatMarkdownV2(text string) string {
	lines := strings.Split(text, "\n")
	var out strings.Builder
	inFence := false

	for i, line := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out.WriteString(line)
			continue
		}
		if inFence {
			out.WriteString(codeEscaper.Replace(line))
			continue
		}
		if title, ok := heading(line); ok {
			out.WriteString("*" + EscapeMarkdownV2(title) + "*")
			continue
		}
		out.WriteString(formatLine(line))
	}

	return out.String()
}

// heading recognizes "#", "##" and "###" headings.
func heading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	depth := len(line) - len(trimmed)
	if depth == 0 || depth > 3 || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	return strings.TrimSpace(trimmed), true
}

// formatLine converts inline markup on one line.
func formatLine(line string) string {
	var out strings.Builder
	runes := []rune(line)

	for i := 0; i < len(runes); {
		switch {
		case runes[i] == '`':
			if end := indexRune(runes, i+1, '`'); end > 0 {
				out.WriteByte('`')
				out.WriteString(codeEscaper.Replace(string(runes[i+1 : end])))
				out.WriteByte('`')
				i = end + 1
				continue
			}
		case isPair(runes, i, '*'):
			if end := indexPair(runes, i+2, '*'); end > 0 {
				out.WriteString("*" + EscapeMarkdownV2(string(runes[i+2:end])) + "*")
				i = end + 2
				continue
			}
		case isPair(runes, i, '_'):
			if end := indexPair(runes, i+2, '_'); end > 0 {
				out.WriteString("__" + EscapeMarkdownV2(string(runes[i+2:end])) + "__")
				i = end + 2
				continue
			}
		}

		out.WriteString(EscapeMarkdownV2(string(runes[i])))
		i++
	}

	return out.String()
}

func isPair(runes []rune, i int, delim rune) bool {
	return i+1 < len(runes) && runes[i] == delim && runes[i+1] == delim
}

// indexRune returns the index of delim at or after start, or -1.
func indexRune(runes []rune, start int, delim rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] == delim {
			return i
		}
	}
	return -1
}

// indexPair returns the index of the first rune of a doubled delim at or
// after start, or -1.
func indexPair(runes []rune, start int, delim rune) int {
	for i := start; i < len(runes)-1; i++ {
		if isPair(runes, i, delim) {
			return i
		}
	}
	return -1
}
