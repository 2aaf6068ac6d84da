package channels

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage splits text into chunks of at most maxLen bytes for platforms
// with a per-message size limit. Prefers splitting at a newline, then at a
// space, so chunks don't end mid-word; falls back to a hard cut only for
// unbroken runs longer than maxLen. Order of chunks matches the original text.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > maxLen/2 {
			cutAt = idx + 1
		} else {
			// Hard cut: back up to a rune boundary so a multi-byte
			// character is never torn across chunks.
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				cutAt = maxLen
			}
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
