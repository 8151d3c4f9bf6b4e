package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEncryptionKeyNotSet = errors.New("encryption key not configured")
	ErrInvalidKey          = errors.New("encryption key must be 32 bytes, hex or base64 encoded")
	ErrCiphertextTooShort  = errors.New("ciphertext too short")
)

// sealedPrefix marks values produced by Sealer so plain JSON written before a
// key was configured can still be read.
const sealedPrefix = "enc:v1:"

// ParseKey decodes a 32-byte AES-256 key from hex or base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEncryptionKeyNotSet
	}
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, ErrInvalidKey
}

// Sealer encrypts values with AES-GCM. The associated data passed to Seal must
// be passed again to Open, which binds a ciphertext to its owner.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return nil, ErrEncryptionKeyNotSet
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

func (s *Sealer) Seal(plaintext, associated []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := s.aead.Seal(nonce, nonce, plaintext, associated)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Sealer) Open(value string, associated []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return nil, err
	}
	if len(data) < s.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ciphertext, associated)
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
