package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// MemoryAdapter implements collaborators.MemoryStore over the
// memory_records table. Search ranks by cosine similarity when the caller
// supplies an embedding, falling back to a substring match otherwise.
type MemoryAdapter struct {
	db *DB
}

// NewMemoryAdapter constructs a MemoryStore collaborator backed by db.
func NewMemoryAdapter(db *DB) *MemoryAdapter {
	return &MemoryAdapter{db: db}
}

func (a *MemoryAdapter) Insert(ctx context.Context, record collaborators.MemoryRecord) error {
	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("store: marshal embedding: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal memory metadata: %w", err)
	}

	row := MemoryRecordRow{
		ID:            uuid.New().String(),
		OrgID:         record.OrgID,
		SessionID:     record.SessionID,
		Kind:          record.Kind,
		Content:       record.Content,
		EmbeddingJSON: string(embeddingJSON),
		MetadataJSON:  string(metadataJSON),
	}
	if _, err := a.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("store: insert memory record: %w", err)
	}
	return nil
}

func (a *MemoryAdapter) Search(ctx context.Context, orgID, query string, embedding []float32, topK int) ([]collaborators.MemoryMatch, error) {
	var rows []MemoryRecordRow
	err := a.db.bun.NewSelect().Model(&rows).
		Where("org_id = ?", orgID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: search memory: %w", err)
	}

	scored := make([]collaborators.MemoryMatch, 0, len(rows))
	for _, row := range rows {
		var rowEmbedding []float32
		_ = json.Unmarshal([]byte(row.EmbeddingJSON), &rowEmbedding)
		var metadata map[string]any
		_ = json.Unmarshal([]byte(row.MetadataJSON), &metadata)

		score := matchScore(embedding, rowEmbedding, query, row.Content)
		if score <= 0 {
			continue
		}

		scored = append(scored, collaborators.MemoryMatch{
			Record: collaborators.MemoryRecord{
				OrgID:     row.OrgID,
				SessionID: row.SessionID,
				Kind:      row.Kind,
				Content:   row.Content,
				Embedding: rowEmbedding,
				Metadata:  metadata,
			},
			Score: score,
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// matchScore scores a candidate row against the query embedding when both
// vectors are non-empty, falling back to a case-insensitive substring match
// ranked by positionalSubstringScore when no embedding is available on
// either side.
func matchScore(queryEmbedding, rowEmbedding []float32, query, content string) float64 {
	if len(queryEmbedding) > 0 && len(rowEmbedding) > 0 {
		return cosineSimilarity(queryEmbedding, rowEmbedding)
	}
	return positionalSubstringScore(query, content)
}

// positionalSubstringScore ranks a case-insensitive substring match by how
// early it appears in content and how much of content it covers, so an
// earlier, more substantial match outranks a late, marginal one. Capped
// below 1 so it never outranks a genuine embedding-based match.
func positionalSubstringScore(query, content string) float64 {
	if query == "" {
		return 0
	}
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)
	idx := strings.Index(lowerContent, lowerQuery)
	if idx < 0 {
		return 0
	}
	if len(lowerContent) == 0 {
		return 0.3
	}

	positionScore := 1 - float64(idx)/float64(len(lowerContent))
	coverageScore := float64(len(lowerQuery)) / float64(len(lowerContent))
	if coverageScore > 1 {
		coverageScore = 1
	}

	score := 0.3 + 0.5*positionScore + 0.2*coverageScore
	if score > 0.99 {
		score = 0.99
	}
	return score
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
