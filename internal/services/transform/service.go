package transform

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

// Service normalizes raw provider content: HTML to markdown, markdown to
// plain text, chunking, and the content fingerprint used for dedup.
type Service struct {
	chunkSize    int
	chunkOverlap int
	markdown     goldmark.Markdown
	logger       arbor.ILogger
}

// NewService creates a new transform service
func NewService(chunkSize, chunkOverlap int, logger arbor.ILogger) interfaces.TransformService {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 8
	}
	return &Service{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		markdown:     goldmark.New(),
		logger:       logger,
	}
}

// HTMLToMarkdown converts an HTML document to markdown and extracts the
// page title. Navigation, scripts and styles are dropped before
// conversion so the markdown reflects readable content.
func (s *Service) HTMLToMarkdown(html string, baseURL string) (string, string, error) {
	if strings.TrimSpace(html) == "" {
		return "", "", nil
	}

	title := ""
	cleaned := html

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
		if title == "" {
			title = strings.TrimSpace(doc.Find("h1").First().Text())
		}

		doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()
		if body, err := doc.Find("body").Html(); err == nil && strings.TrimSpace(body) != "" {
			cleaned = body
		}
	} else {
		s.logger.Warn().Err(err).Msg("HTML parse failed, converting raw document")
	}

	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(cleaned)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, stripping tags")
		return stripHTMLTags(cleaned), title, nil
	}

	if strings.TrimSpace(converted) == "" && strings.TrimSpace(html) != "" {
		return stripHTMLTags(cleaned), title, nil
	}

	return converted, title, nil
}

// MarkdownToText renders markdown to HTML via goldmark, then strips the
// markup. Rendering first keeps link text and list content that naive
// regex stripping of markdown would mangle.
func (s *Service) MarkdownToText(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return stripHTMLTags(buf.String()), nil
	}

	text := doc.Text()
	text = regexp.MustCompile(`[ \t]+`).ReplaceAllString(text, " ")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

// Chunk splits text into word-boundary chunks of roughly chunkSize
// characters with chunkOverlap characters carried between neighbours.
func (s *Service) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var current []string
	currentLen := 0

	for _, word := range words {
		current = append(current, word)
		currentLen += len(word) + 1

		if currentLen >= s.chunkSize {
			chunks = append(chunks, strings.Join(current, " "))

			// Carry trailing words into the next chunk for overlap
			overlapLen := 0
			var carried []string
			for i := len(current) - 1; i >= 0 && overlapLen < s.chunkOverlap; i-- {
				carried = append([]string{current[i]}, carried...)
				overlapLen += len(current[i]) + 1
			}
			current = carried
			currentLen = overlapLen
		}
	}

	if currentLen > 0 && len(strings.TrimSpace(strings.Join(current, " "))) > 0 {
		tail := strings.Join(current, " ")
		if len(chunks) == 0 || chunks[len(chunks)-1] != tail {
			chunks = append(chunks, tail)
		}
	}

	return chunks
}

// Hash returns the sha256 fingerprint of the normalized text. Whitespace
// runs are collapsed first so formatting differences do not defeat dedup.
func (s *Service) Hash(text string) string {
	normalized := regexp.MustCompile(`\s+`).ReplaceAllString(strings.TrimSpace(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// stripHTMLTags removes HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	re := regexp.MustCompile(`<[^>]*>`)
	stripped := re.ReplaceAllString(htmlStr, " ")

	stripped = strings.ReplaceAll(stripped, "&amp;", "&")
	stripped = strings.ReplaceAll(stripped, "&lt;", "<")
	stripped = strings.ReplaceAll(stripped, "&gt;", ">")
	stripped = strings.ReplaceAll(stripped, "&quot;", "\"")
	stripped = strings.ReplaceAll(stripped, "&#39;", "'")
	stripped = strings.ReplaceAll(stripped, "&nbsp;", " ")

	stripped = regexp.MustCompile(`\s+`).ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}
