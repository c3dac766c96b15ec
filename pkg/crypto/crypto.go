// Package crypto protects exchange API credentials at rest with
// AES-256-GCM. Ciphertexts carry a key-version prefix so keys can rotate
// without re-encrypting the whole table up front.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrNoKeys            = errors.New("keyring has no keys")
)

// sealer is one key version.
type sealer struct {
	key     []byte
	version int
}

// seal produces "ENC[vN]:base64(nonce+ciphertext)".
func (s *sealer) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ct := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("ENC[v%d]:%s", s.version, base64.StdEncoding.EncodeToString(ct)), nil
}

func (s *sealer) open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < NonceSize {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Keyring holds key versions. Encrypt always uses the newest key; Decrypt
// selects the version the ciphertext names.
type Keyring struct {
	mu      sync.RWMutex
	sealers map[int]*sealer
	current int
}

// NewKeyring creates a keyring from base64-encoded 32-byte keys indexed by
// version. The highest version becomes the encryption key.
func NewKeyring(keys map[int]string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	kr := &Keyring{sealers: make(map[int]*sealer)}
	for version, encoded := range keys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode key v%d: %w", version, err)
		}
		if len(raw) != KeySize {
			return nil, fmt.Errorf("key v%d: %w", version, ErrInvalidKey)
		}
		kr.sealers[version] = &sealer{key: raw, version: version}
		if version > kr.current {
			kr.current = version
		}
	}
	return kr, nil
}

// Encrypt seals plaintext with the newest key version.
func (kr *Keyring) Encrypt(plaintext string) (string, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	s, ok := kr.sealers[kr.current]
	if !ok {
		return "", ErrNoKeys
	}
	return s.seal(plaintext)
}

// Decrypt opens a ciphertext with the key version its prefix names.
func (kr *Keyring) Decrypt(ciphertext string) (string, error) {
	version, encoded, err := splitCiphertext(ciphertext)
	if err != nil {
		return "", err
	}

	kr.mu.RLock()
	s, ok := kr.sealers[version]
	kr.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("key version %d not available", version)
	}
	return s.open(encoded)
}

// ReEncrypt rewrites a ciphertext under the newest key, for rotation.
func (kr *Keyring) ReEncrypt(ciphertext string) (string, error) {
	plaintext, err := kr.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt for re-encryption: %w", err)
	}
	return kr.Encrypt(plaintext)
}

// CurrentVersion reports the version new ciphertexts are sealed with.
func (kr *Keyring) CurrentVersion() int {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.current
}

// splitCiphertext parses "ENC[vN]:data" into version and payload.
func splitCiphertext(ciphertext string) (int, string, error) {
	if !strings.HasPrefix(ciphertext, "ENC[v") {
		return 0, "", ErrInvalidCiphertext
	}
	sep := strings.Index(ciphertext, "]:")
	if sep == -1 {
		return 0, "", ErrInvalidCiphertext
	}

	var version int
	if _, err := fmt.Sscanf(ciphertext[:sep+2], "ENC[v%d]:", &version); err != nil || version <= 0 {
		return 0, "", ErrInvalidCiphertext
	}
	return version, ciphertext[sep+2:], nil
}

// GenerateKey returns a fresh random AES-256 key, base64-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
