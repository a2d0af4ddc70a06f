package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

const offlineDimension = 256

// OfflineService produces deterministic embeddings without network
// access. Vectors are derived from chunk content hashes, so identical
// text always embeds identically. Used for development and tests, and
// as the fallback when no API key is configured.
type OfflineService struct {
	logger arbor.ILogger
}

// NewOfflineService creates the deterministic offline embedder
func NewOfflineService(logger arbor.ILogger) interfaces.EmbeddingService {
	logger.Info().Int("dimension", offlineDimension).Msg("Offline embedding service initialized")
	return &OfflineService{logger: logger}
}

// EmbedTexts generates one deterministic unit vector per chunk
func (s *OfflineService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vectors[i] = embedDeterministic(text)
	}
	return vectors, nil
}

func embedDeterministic(text string) []float32 {
	vec := make([]float32, offlineDimension)
	seed := sha256.Sum256([]byte(text))

	// Expand the hash into the full dimension by re-hashing with a counter
	var norm float64
	buf := make([]byte, len(seed)+8)
	copy(buf, seed[:])
	for i := 0; i < offlineDimension; i += 8 {
		binary.LittleEndian.PutUint64(buf[len(seed):], uint64(i))
		block := sha256.Sum256(buf)
		for j := 0; j < 8 && i+j < offlineDimension; j++ {
			bits := binary.LittleEndian.Uint32(block[j*4 : j*4+4])
			v := float32(int32(bits)) / float32(math.MaxInt32)
			vec[i+j] = v
			norm += float64(v) * float64(v)
		}
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
