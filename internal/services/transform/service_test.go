package transform

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
)

func newTestService(chunkSize, chunkOverlap int) *Service {
	return NewService(chunkSize, chunkOverlap, arbor.NewLogger()).(*Service)
}

func TestHTMLToMarkdownExtractsTitle(t *testing.T) {
	svc := newTestService(1200, 150)

	html := `<html><head><title>  My Page  </title><script>alert(1)</script></head>
<body><nav>skip me</nav><h1>Heading</h1><p>Hello <strong>world</strong>.</p>
<style>.x{color:red}</style></body></html>`

	markdown, title, err := svc.HTMLToMarkdown(html, "https://example.com")
	if err != nil {
		t.Fatalf("HTMLToMarkdown failed: %v", err)
	}
	if title != "My Page" {
		t.Errorf("title = %q, want My Page", title)
	}
	if !strings.Contains(markdown, "Hello **world**") {
		t.Errorf("markdown missing converted body: %q", markdown)
	}
	if strings.Contains(markdown, "alert(1)") || strings.Contains(markdown, "color:red") {
		t.Errorf("script/style content leaked into markdown: %q", markdown)
	}
	if strings.Contains(markdown, "skip me") {
		t.Errorf("nav content leaked into markdown: %q", markdown)
	}
}

func TestHTMLToMarkdownTitleFallsBackToH1(t *testing.T) {
	svc := newTestService(1200, 150)

	_, title, err := svc.HTMLToMarkdown("<html><body><h1>Fallback Heading</h1><p>x</p></body></html>", "")
	if err != nil {
		t.Fatalf("HTMLToMarkdown failed: %v", err)
	}
	if title != "Fallback Heading" {
		t.Errorf("title = %q, want Fallback Heading", title)
	}
}

func TestHTMLToMarkdownEmptyInput(t *testing.T) {
	svc := newTestService(1200, 150)

	markdown, title, err := svc.HTMLToMarkdown("   \n\t ", "")
	if err != nil {
		t.Fatalf("HTMLToMarkdown failed: %v", err)
	}
	if markdown != "" || title != "" {
		t.Errorf("blank input produced markdown=%q title=%q", markdown, title)
	}
}

func TestMarkdownToText(t *testing.T) {
	svc := newTestService(1200, 150)

	text, err := svc.MarkdownToText("# Heading\n\nSome [link text](https://example.com) and *emphasis*.\n\n- first\n- second")
	if err != nil {
		t.Fatalf("MarkdownToText failed: %v", err)
	}
	for _, want := range []string{"Heading", "link text", "emphasis", "first", "second"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	if strings.Contains(text, "https://example.com") || strings.Contains(text, "#") || strings.Contains(text, "*") {
		t.Errorf("markup leaked into text: %q", text)
	}
}

func TestMarkdownToTextEmpty(t *testing.T) {
	svc := newTestService(1200, 150)

	text, err := svc.MarkdownToText("  \n ")
	if err != nil {
		t.Fatalf("MarkdownToText failed: %v", err)
	}
	if text != "" {
		t.Errorf("blank markdown produced %q", text)
	}
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	svc := newTestService(100, 20)

	chunks := svc.Chunk("just a short sentence")
	if len(chunks) != 1 || chunks[0] != "just a short sentence" {
		t.Errorf("chunks = %v, want the text unchanged", chunks)
	}
}

func TestChunkEmptyText(t *testing.T) {
	svc := newTestService(100, 20)

	if chunks := svc.Chunk("   "); chunks != nil {
		t.Errorf("blank text produced chunks: %v", chunks)
	}
}

func TestChunkSplitsOnWordBoundaries(t *testing.T) {
	svc := newTestService(50, 10)

	text := strings.Repeat("alpha bravo charlie delta echo ", 10)
	chunks := svc.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	words := map[string]bool{"alpha": true, "bravo": true, "charlie": true, "delta": true, "echo": true}
	for i, chunk := range chunks {
		for _, w := range strings.Fields(chunk) {
			if !words[w] {
				t.Errorf("chunk %d split a word: %q", i, w)
			}
		}
	}
}

func TestChunkOverlapCarriesTrailingWords(t *testing.T) {
	svc := newTestService(50, 15)

	text := strings.Repeat("one two three four five six seven eight ", 5)
	chunks := svc.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Some suffix of chunk 0 must reappear as the prefix of chunk 1
	firstWords := strings.Fields(chunks[0])
	overlapped := false
	for n := len(firstWords) - 1; n > 0; n-- {
		tail := strings.Join(firstWords[n:], " ")
		if strings.HasPrefix(chunks[1], tail) {
			overlapped = true
			break
		}
	}
	if !overlapped {
		t.Errorf("no overlap between %q and %q", chunks[0], chunks[1])
	}
}

func TestHashIsWhitespaceInsensitive(t *testing.T) {
	svc := newTestService(1200, 150)

	a := svc.Hash("hello   world\n\nagain")
	b := svc.Hash("  hello world again  ")
	if a != b {
		t.Error("hash must ignore whitespace runs")
	}
	if a == svc.Hash("hello world different") {
		t.Error("different content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
