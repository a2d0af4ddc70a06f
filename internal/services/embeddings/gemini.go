package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

// GeminiService generates embeddings through the Gemini API
type GeminiService struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

// NewGeminiService creates an embedding service backed by the Gemini API
func NewGeminiService(ctx context.Context, apiKey, model string, logger arbor.ILogger) (interfaces.EmbeddingService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info().Str("model", model).Msg("Gemini embedding service initialized")

	return &GeminiService{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// EmbedTexts generates one embedding vector per input chunk
func (s *GeminiService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	result, err := s.client.Models.EmbedContent(ctx, s.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding returned for chunk %d", i)
		}
		vectors[i] = emb.Values
	}

	s.logger.Debug().
		Int("chunks", len(texts)).
		Int("dimension", len(vectors[0])).
		Msg("Generated embeddings")

	return vectors, nil
}
