// File: internal/infra/security/encryption_service.go
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// MasterKeySize is the AES-256 key length.
const MasterKeySize = 32

var (
	ErrInvalidKeySize      = errors.New("master key must be 32 bytes")
	ErrMalformedCiphertext = errors.New("ciphertext is not valid base64")
	ErrCiphertextTooShort  = errors.New("ciphertext shorter than one IV plus one block")
	ErrInvalidBlockSize    = errors.New("ciphertext is not a whole number of blocks")
	ErrInvalidPadding      = errors.New("invalid PKCS7 padding")
)

// EncryptionService encrypts config values with AES-256-CBC and PKCS7 padding.
// Stored format: base64(IV || ciphertext), a fresh random IV per value.
// CBC is unauthenticated; a wrong key surfaces as ErrInvalidPadding most of the time.
type EncryptionService struct {
	key   []byte
	block cipher.Block
}

// NewEncryptionService copies key; callers may wipe their slice afterwards.
func NewEncryptionService(key []byte) (*EncryptionService, error) {
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("%w; got %d", ErrInvalidKeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return &EncryptionService{key: k, block: block}, nil
}

// Encrypt returns base64(IV || ciphertext).
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("rand iv: %w", err)
	}
	cipher.NewCBCEncrypter(e.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt accepts output of Encrypt and returns the original plaintext.
func (e *EncryptionService) Decrypt(b64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(data) < 2*aes.BlockSize {
		return "", ErrCiphertextTooShort
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return "", ErrInvalidBlockSize
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(e.block, iv).CryptBlocks(pt, ct)
	unpadded, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// Zeroize wipes the key copy. The service is unusable afterwards.
func (e *EncryptionService) Zeroize() {
	for i := range e.key {
		e.key[i] = 0
	}
	e.block = nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, ErrInvalidPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
