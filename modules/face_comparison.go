package modules

import (
	"github.com/SanAfaGal/powergym-back-sub000/config"
)

// ValidateEmbedding enforces the dimensionality invariant. A vector of the
// wrong length is never truncated or padded.
func ValidateEmbedding(embedding []float64, dimensions int) error {
	if len(embedding) != dimensions {
		return config.NewValidationError("embedding has %d dimensions, expected %d", len(embedding), dimensions)
	}
	return nil
}

// Compare computes the cosine similarity of two embeddings and tests it
// against the tolerance. Extraction guarantees unit-norm vectors, so the dot
// product is the similarity directly; no renormalization happens here and
// un-normalized inputs are the caller's bug.
func Compare(a, b []float64, dimensions int, tolerance float64) (bool, float64, error) {
	if err := ValidateEmbedding(a, dimensions); err != nil {
		return false, 0, err
	}
	if err := ValidateEmbedding(b, dimensions); err != nil {
		return false, 0, err
	}

	var similarity float64
	for i := range a {
		similarity += a[i] * b[i]
	}

	return similarity >= tolerance, similarity, nil
}

// FindBestMatch scans every candidate linearly, tracking the maximum
// similarity. Returns index -1 when even the best candidate falls below the
// tolerance. Linear cost is fine at a single gym's roster size; an ANN index
// is the upgrade path if candidate counts ever grow large.
func FindBestMatch(query []float64, candidates [][]float64, dimensions int, tolerance float64) (int, float64, error) {
	if err := ValidateEmbedding(query, dimensions); err != nil {
		return -1, 0, err
	}

	bestIdx := -1
	bestSimilarity := -1.0
	for i, candidate := range candidates {
		_, similarity, err := Compare(query, candidate, dimensions, tolerance)
		if err != nil {
			return -1, 0, err
		}
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestSimilarity < tolerance {
		return -1, bestSimilarity, nil
	}
	return bestIdx, bestSimilarity, nil
}
