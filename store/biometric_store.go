package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/SanAfaGal/powergym-back-sub000/config"
	"github.com/SanAfaGal/powergym-back-sub000/utils"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SimilarRecord pairs a record with its cosine distance to the query vector.
type SimilarRecord struct {
	BiometricRecord `gorm:"embedded"`
	Distance        float64 `json:"distance"`
}

// BiometricRepositoryInterface is the persistence seam the orchestrator is
// built against.
type BiometricRepositoryInterface interface {
	Store(subjectID string, embedding []float64, thumbnail []byte) (*BiometricRecord, error)
	SearchSimilar(embedding []float64, limit int, maxDistance float64, excludeSubject string) ([]SimilarRecord, error)
	GetActiveBySubject(subjectID string) (*BiometricRecord, error)
	Deactivate(subjectID string) error
}

// BiometricStore persists face templates in Postgres with a pgvector column
// so nearest-neighbor search runs on the database's native cosine-distance
// operator.
type BiometricStore struct {
	DB           *gorm.DB
	cipher       *ThumbnailCipher
	dimensions   int
	modelVersion string
	logger       *zap.Logger
}

var _ BiometricRepositoryInterface = (*BiometricStore)(nil)

func NewBiometricStore(db *gorm.DB, cipher *ThumbnailCipher, dimensions int, modelVersion string, logger *zap.Logger) *BiometricStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BiometricStore{
		DB:           db,
		cipher:       cipher,
		dimensions:   dimensions,
		modelVersion: modelVersion,
		logger:       logger,
	}
}

// OpenPostgres connects to the database and prepares the schema: the vector
// extension, the records table and an HNSW index over the embedding column.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable vector extension: %w", err)
	}
	if err := db.AutoMigrate(&BiometricRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate biometric records: %w", err)
	}
	if err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_biometric_records_embedding ON biometric_records USING hnsw (embedding vector_cosine_ops)",
	).Error; err != nil {
		return nil, fmt.Errorf("failed to create embedding index: %w", err)
	}
	return db, nil
}

/*
Store persists a new active face template for the subject.

The deactivate-then-insert sequence runs inside one transaction that takes
row locks (SELECT ... FOR UPDATE) on the subject's currently-active records,
so two concurrent registrations for the same subject serialize instead of
both ending up active.
*/
func (s *BiometricStore) Store(subjectID string, embedding []float64, thumbnail []byte) (*BiometricRecord, error) {
	if len(embedding) != s.dimensions {
		return nil, config.NewValidationError("embedding has %d dimensions, expected %d", len(embedding), s.dimensions)
	}

	encrypted, err := s.cipher.Encrypt(thumbnail)
	if err != nil {
		s.logger.Error("thumbnail encryption failed", zap.Error(err))
		return nil, config.NewPersistenceError("could not store biometric data", err)
	}

	record := &BiometricRecord{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		BiometricType: BiometricTypeFace,
		Thumbnail:     encrypted,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	record.SetEmbedding(embedding)
	if err := record.SetMetadata(RecordMetadata{
		ModelVersion:     s.modelVersion,
		Dimensions:       s.dimensions,
		EncryptionScheme: EncryptionScheme,
	}); err != nil {
		return nil, config.NewPersistenceError("could not store biometric data", err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var active []BiometricRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_id = ? AND biometric_type = ? AND is_active = ?", subjectID, BiometricTypeFace, true).
			Find(&active).Error; err != nil {
			return err
		}

		if len(active) > 0 {
			if err := tx.Model(&BiometricRecord{}).
				Where("subject_id = ? AND biometric_type = ? AND is_active = ?", subjectID, BiometricTypeFace, true).
				Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error; err != nil {
				return err
			}
		}

		return tx.Create(record).Error
	})
	if err != nil {
		s.logger.Error("failed to store biometric record",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return nil, config.NewPersistenceError("could not store biometric data", err)
	}

	return record, nil
}

// SearchSimilar delegates nearest-neighbor ranking to the pgvector cosine
// operator (<=>, distance = 1 - cosine similarity), filtered to active face
// records within the distance threshold, ascending, capped at limit.
func (s *BiometricStore) SearchSimilar(embedding []float64, limit int, maxDistance float64, excludeSubject string) ([]SimilarRecord, error) {
	if len(embedding) != s.dimensions {
		return nil, config.NewValidationError("embedding has %d dimensions, expected %d", len(embedding), s.dimensions)
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(utils.Float64sToFloat32s(embedding))

	var results []SimilarRecord
	query := `SELECT *, embedding <=> ? AS distance
		FROM biometric_records
		WHERE biometric_type = ? AND is_active = true AND (embedding <=> ?) <= ?`
	args := []any{vec, BiometricTypeFace, vec, maxDistance}
	if excludeSubject != "" {
		query += " AND subject_id <> ?"
		args = append(args, excludeSubject)
	}
	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	if err := s.DB.Raw(query, args...).Scan(&results).Error; err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		return nil, config.NewPersistenceError("could not search biometric data", err)
	}
	return results, nil
}

// GetActiveBySubject fetches the subject's single active face record.
func (s *BiometricStore) GetActiveBySubject(subjectID string) (*BiometricRecord, error) {
	var record BiometricRecord
	err := s.DB.
		Where("subject_id = ? AND biometric_type = ? AND is_active = ?", subjectID, BiometricTypeFace, true).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, config.NewNotFoundError("no active biometric record for subject %s", subjectID)
		}
		s.logger.Error("failed to fetch biometric record", zap.String("subject_id", subjectID), zap.Error(err))
		return nil, config.NewPersistenceError("could not read biometric data", err)
	}
	return &record, nil
}

// Deactivate soft-deletes the subject's face records by marking them
// inactive; records are never physically removed.
func (s *BiometricStore) Deactivate(subjectID string) error {
	result := s.DB.Model(&BiometricRecord{}).
		Where("subject_id = ? AND biometric_type = ? AND is_active = ?", subjectID, BiometricTypeFace, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		s.logger.Error("failed to deactivate biometric records", zap.String("subject_id", subjectID), zap.Error(result.Error))
		return config.NewPersistenceError("could not delete biometric data", result.Error)
	}
	if result.RowsAffected == 0 {
		return config.NewNotFoundError("no active biometric record for subject %s", subjectID)
	}
	return nil
}

// DecryptThumbnail opens a record's stored thumbnail.
func (s *BiometricStore) DecryptThumbnail(record *BiometricRecord) ([]byte, error) {
	return s.cipher.Decrypt(record.Thumbnail)
}
