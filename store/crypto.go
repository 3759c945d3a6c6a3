package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionScheme tags stored thumbnails so future key or cipher rotations
// can tell record generations apart.
const EncryptionScheme = "xchacha20poly1305"

// ThumbnailCipher provides authenticated encryption for stored thumbnails.
// Thumbnails never reach the database unencrypted.
type ThumbnailCipher struct {
	key []byte
}

func NewThumbnailCipher(key []byte) (*ThumbnailCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("thumbnail encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &ThumbnailCipher{key: k}, nil
}

// Encrypt seals the plaintext with a fresh random nonce, which is prepended
// to the ciphertext.
func (c *ThumbnailCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt, failing on truncation or
// tampering.
func (c *ThumbnailCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}
