package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordMetadataRoundTrip(t *testing.T) {
	record := &BiometricRecord{}
	meta := RecordMetadata{
		ModelVersion:     "arcface-r50-v1",
		Dimensions:       512,
		EncryptionScheme: EncryptionScheme,
	}
	assert.NoError(t, record.SetMetadata(meta))

	got, err := record.GetMetadata()
	assert.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestRecordMetadataEmpty(t *testing.T) {
	record := &BiometricRecord{}
	got, err := record.GetMetadata()
	assert.NoError(t, err)
	assert.Equal(t, RecordMetadata{}, got)
}

func TestRecordEmbeddingRoundTrip(t *testing.T) {
	record := &BiometricRecord{}

	embedding := make([]float64, 512)
	for i := range embedding {
		embedding[i] = float64(i%7) * 0.1
	}
	record.SetEmbedding(embedding)

	got := record.GetEmbedding()
	assert.Len(t, got, 512)
	for i := range embedding {
		assert.InDelta(t, embedding[i], got[i], 1e-6)
	}
}

func TestRecordTableName(t *testing.T) {
	assert.Equal(t, "biometric_records", BiometricRecord{}.TableName())
}
