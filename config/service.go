package config

import (
	"encoding/base64"
	"fmt"

	"github.com/joho/godotenv"
)

// ServiceParams holds the deployment-level settings the pipeline needs to
// reach its backing services.
type ServiceParams struct {
	TritonURL        string `json:"triton_url"`
	DatabaseDSN      string `json:"-"`
	EncryptionKeyB64 string `json:"-"`
}

// LoadServiceParams reads the service endpoints from the environment. A
// missing .env file is not an error.
func LoadServiceParams() *ServiceParams {
	_ = godotenv.Load()

	return &ServiceParams{
		TritonURL:        getEnvOrDefault("TRITON_SERVER_URL", "127.0.0.1:8301"),
		DatabaseDSN:      getEnvOrDefault("DATABASE_DSN", "host=localhost user=postgres dbname=powergym sslmode=disable"),
		EncryptionKeyB64: getEnvOrDefault("BIOMETRIC_ENCRYPTION_KEY", ""),
	}
}

// DecodeEncryptionKey decodes the base64 thumbnail encryption key. The key is
// mandatory: there is no insecure fallback for stored thumbnails.
func (p *ServiceParams) DecodeEncryptionKey() ([]byte, error) {
	if p.EncryptionKeyB64 == "" {
		return nil, fmt.Errorf("BIOMETRIC_ENCRYPTION_KEY is not set")
	}
	key, err := base64.StdEncoding.DecodeString(p.EncryptionKeyB64)
	if err != nil {
		return nil, fmt.Errorf("BIOMETRIC_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	return key, nil
}
