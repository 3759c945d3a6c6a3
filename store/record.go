package store

import (
	"encoding/json"
	"time"

	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// BiometricTypeFace is the only modality this core stores.
const BiometricTypeFace = "face"

// BiometricRecord is a stored face template: the identity embedding in a
// native vector column plus an always-encrypted thumbnail. At most one active
// record per subject and biometric type exists at any time; replacement
// deactivates the predecessor instead of mutating it.
type BiometricRecord struct {
	ID            uuid.UUID       `gorm:"primaryKey;type:uuid" json:"id"`
	SubjectID     string          `gorm:"not null;index:idx_biometric_subject_type" json:"subject_id"`
	BiometricType string          `gorm:"not null;index:idx_biometric_subject_type" json:"biometric_type"`
	Embedding     pgvector.Vector `gorm:"type:vector(512);not null" json:"-"`
	Thumbnail     []byte          `gorm:"not null" json:"-"`
	IsActive      bool            `gorm:"not null;index" json:"is_active"`
	Meta          []byte          `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (BiometricRecord) TableName() string {
	return "biometric_records"
}

// RecordMetadata tags a record for forward compatibility: which model
// produced the embedding, its dimensionality and how the thumbnail is
// encrypted.
type RecordMetadata struct {
	ModelVersion     string `json:"model_version"`
	Dimensions       int    `json:"dimensions"`
	EncryptionScheme string `json:"encryption_scheme"`
}

func (r *BiometricRecord) SetMetadata(meta RecordMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	r.Meta = raw
	return nil
}

func (r *BiometricRecord) GetMetadata() (RecordMetadata, error) {
	var meta RecordMetadata
	if len(r.Meta) == 0 {
		return meta, nil
	}
	err := json.Unmarshal(r.Meta, &meta)
	return meta, err
}

// SetEmbedding stores the float64 pipeline vector in the float32 column
// format pgvector uses. The narrowing loses ~1e-7 per component, which is
// noise next to the 0.6 match tolerance.
func (r *BiometricRecord) SetEmbedding(embedding []float64) {
	r.Embedding = pgvector.NewVector(utils.Float64sToFloat32s(embedding))
}

// GetEmbedding widens the stored vector back to the pipeline representation.
func (r *BiometricRecord) GetEmbedding() []float64 {
	return utils.Float32sToFloat64s(r.Embedding.Slice())
}
