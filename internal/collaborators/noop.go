package collaborators

import "context"

// NoopEmbeddingProvider is the default EmbeddingProvider when no embedding
// backend is configured. It always reports "unavailable", so MemoryStore
// callers fall back to substring matching.
type NoopEmbeddingProvider struct{}

func (NoopEmbeddingProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

var _ EmbeddingProvider = NoopEmbeddingProvider{}
