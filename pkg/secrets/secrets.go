// Package secrets implements the SecretStore component: AES-256-GCM
// authenticated encryption of model credentials at rest, with a four-tier
// key resolution chain (memoized, environment, OS keyring with file
// fallback, freshly generated).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"
	"github.com/natefinch/atomic"

	"github.com/whytchat/core/pkg/coreerr"
)

const (
	keyringService = "whytchat"
	keyringUser    = "encryption-key"
	keySize        = 32
	nonceSize      = 12
)

// Store encrypts and decrypts ModelConfig blobs (and any other secret the
// host wants to protect) with one AES-256 key, resolved on first use and
// memoized per Store (Stores do not share the memoized key).
type Store struct {
	keyFile string

	once sync.Once
	key  [keySize]byte
	err  error

	ring keyring.Keyring
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithKeyring overrides the keyring backend (tests inject an in-memory one).
func WithKeyring(r keyring.Keyring) Option {
	return func(s *Store) { s.ring = r }
}

// New builds a Store that persists its fallback key file at keyFile
// (normally paths.Paths.SecretKeyFile).
func New(keyFile string, opts ...Option) *Store {
	s := &Store{keyFile: keyFile}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encrypt authenticates and encrypts plaintext, returning
// base64(nonce‖ciphertext‖tag) per the on-disk framing.
func (s *Store) Encrypt(plaintext []byte) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", coreerr.Wrap(coreerr.CryptoError, "generate nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A malformed blob or failed authentication
// returns a CryptoError and never a partial plaintext.
func (s *Store) Decrypt(blob string) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CryptoError, "decode blob", err)
	}
	if len(raw) < nonceSize {
		return nil, coreerr.New(coreerr.CryptoError, "blob shorter than nonce")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CryptoError, "authenticate ciphertext", err)
	}
	return plaintext, nil
}

func (s *Store) gcm() (cipher.AEAD, error) {
	s.once.Do(func() {
		s.key, s.err = s.resolveKey()
	})
	if s.err != nil {
		return nil, s.err
	}

	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CryptoError, "construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CryptoError, "construct GCM mode", err)
	}
	return gcm, nil
}

// resolveKey implements the four-tier chain: env var, OS keyring, file
// fallback, freshly generated (persisted via whichever of the last two
// tiers is active).
func (s *Store) resolveKey() ([keySize]byte, error) {
	var key [keySize]byte

	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil || len(decoded) != keySize {
			return key, coreerr.New(coreerr.CryptoError, "ENCRYPTION_KEY must be 64 hex characters")
		}
		copy(key[:], decoded)
		return key, nil
	}

	ring := s.ring
	if ring == nil {
		r, err := keyring.Open(keyring.Config{ServiceName: keyringService})
		if err == nil {
			ring = r
		} else {
			slog.Warn("secrets: OS keyring unavailable, falling back to key file", "error", err)
		}
	}

	if ring != nil {
		if item, err := ring.Get(keyringUser); err == nil {
			decoded, derr := hex.DecodeString(string(item.Data))
			if derr == nil && len(decoded) == keySize {
				copy(key[:], decoded)
				return key, nil
			}
			slog.Warn("secrets: keyring entry malformed, regenerating", "error", derr)
		}
	}

	if decoded, err := s.readKeyFile(); err == nil {
		copy(key[:], decoded)
		if ring != nil {
			_ = ring.Set(keyring.Item{Key: keyringUser, Data: []byte(hex.EncodeToString(decoded))})
		}
		return key, nil
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, coreerr.Wrap(coreerr.CryptoError, "generate encryption key", err)
	}

	if ring != nil {
		if err := ring.Set(keyring.Item{Key: keyringUser, Data: []byte(hex.EncodeToString(key[:]))}); err != nil {
			slog.Warn("secrets: could not persist key to OS keyring, writing key file", "error", err)
			if werr := s.writeKeyFile(key[:]); werr != nil {
				return key, werr
			}
		}
	} else if err := s.writeKeyFile(key[:]); err != nil {
		return key, err
	}

	return key, nil
}

// readKeyFile and writeKeyFile frame the fallback key as base64 of the raw
// 32 bytes, distinct from the hex framing ENCRYPTION_KEY and the OS
// keyring use.
func (s *Store) readKeyFile() ([]byte, error) {
	raw, err := os.ReadFile(s.keyFile)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil || len(decoded) != keySize {
		return nil, fmt.Errorf("secrets: key file %q malformed", s.keyFile)
	}
	return decoded, nil
}

func (s *Store) writeKeyFile(key []byte) error {
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := atomic.WriteFile(s.keyFile, strings.NewReader(encoded)); err != nil {
		return coreerr.Wrap(coreerr.CryptoError, "persist encryption key", err)
	}
	return os.Chmod(s.keyFile, 0o600)
}
