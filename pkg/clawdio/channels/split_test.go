package channels

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		maxLen int
		want   int
	}{
		{"short text single chunk", "hello", 100, 1},
		{"exact limit single chunk", strings.Repeat("a", 10), 10, 1},
		{"two chunks", strings.Repeat("a", 10) + " " + strings.Repeat("b", 10), 12, 2},
		{"zero max returns whole", "hello world", 0, 1},
		{"empty text", "", 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := SplitMessage(tt.text, tt.maxLen)
			if len(chunks) != tt.want {
				t.Errorf("SplitMessage() = %d chunks, want %d", len(chunks), tt.want)
			}
			if strings.Join(chunks, "") != tt.text {
				t.Errorf("chunks do not reassemble to original text")
			}
		})
	}
}

func TestSplitMessagePrefersNewline(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 60) + "\n" + strings.Repeat("y", 60)
	chunks := SplitMessage(text, 100)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Errorf("first chunk should end at the newline, got %q", chunks[0][len(chunks[0])-5:])
	}
}

func TestSplitMessageAvoidsMidWord(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 40) // 200 bytes
	for _, chunk := range SplitMessage(text, 60) {
		trimmed := strings.TrimRight(chunk, " ")
		if !strings.HasSuffix(trimmed, "word") {
			t.Errorf("chunk ends mid-word: %q", chunk)
		}
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	t.Parallel()

	// No break opportunities at all: must hard-cut rather than loop forever.
	text := strings.Repeat("a", 250)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:2] {
		if len(c) != 100 {
			t.Errorf("chunk %d length = %d, want 100", i, len(c))
		}
	}
}

func TestSplitMessageMultiByteHardCut(t *testing.T) {
	t.Parallel()

	// CJK text has no spaces, so every cut is a hard cut. 100 is not a
	// multiple of 3 bytes, so a byte-offset cut would tear a rune.
	text := strings.Repeat("日本語のテキスト", 100)
	chunks := SplitMessage(text, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if len(c) > 100 {
			t.Errorf("chunk %d length = %d, want <= 100", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble to original text")
	}
}

func TestSplitMessagePreservesOrder(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString(strings.Repeat("line", 10))
		b.WriteString("\n")
	}
	chunks := SplitMessage(b.String(), 120)
	if strings.Join(chunks, "") != b.String() {
		t.Error("chunk order or content corrupted")
	}
}
