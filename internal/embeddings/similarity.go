// Package embeddings stores embedding vectors and scores them against queries.
package embeddings

import (
	"fmt"
	"math"
)

// CosineSimilarity calculates the cosine similarity between two vectors
// Returns a value between -1 and 1, where 1 means identical direction
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have same length: %d vs %d", len(a), len(b))
	}

	if len(a) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}

	dotProduct := 0.0
	normA := 0.0
	normB := 0.0

	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)

	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("vector norm cannot be zero")
	}

	similarity := dotProduct / (normA * normB)

	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return similarity, nil
}

// SemanticScore maps a cosine similarity from [-1, 1] onto [0, 100]
func SemanticScore(similarity float64) float64 {
	return (similarity + 1) * 50
}

// HybridScore combines a raw keyword score with a semantic score. The
// keyword score is halved and capped at 100 so both parts share a scale.
func HybridScore(keyword int, semantic, keywordWeight, semanticWeight float64) float64 {
	normalized := math.Min(float64(keyword)/2.0, 100)
	return keywordWeight*normalized + semanticWeight*semantic
}
