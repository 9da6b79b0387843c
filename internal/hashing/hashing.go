package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"bookings-assistant/internal/config"
)

const keyLength = 32

// devFallbackSecret is only used when the secret path is not accessible.
// Hashes derived from it are not secure and must never be relied on in
// production.
const devFallbackSecret = "dev-fallback-secret-do-not-use-in-production!!!"

// Hasher derives deterministic one-way hashes for PII (emails, names) so
// that captured emails can be matched against bookings without storing
// plaintext. The secret and iteration count are fixed at construction.
type Hasher struct {
	secret     []byte
	iterations int
}

// New loads or creates the process-wide hash secret and returns a Hasher.
// Resolution order: existing secret file, freshly generated secret persisted
// next to it, development fallback constant.
func New(cfg config.HashingConfig) (*Hasher, error) {
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("hashing iterations must be positive, got %d", cfg.Iterations)
	}

	secret, err := loadOrCreateSecret(cfg.SecretPath)
	if err != nil {
		return nil, err
	}

	return &Hasher{secret: secret, iterations: cfg.Iterations}, nil
}

// NewWithSecret builds a Hasher from explicit material. Used by tests.
func NewWithSecret(secret []byte, iterations int) *Hasher {
	return &Hasher{secret: secret, iterations: iterations}
}

// Hash normalizes the value (trim + lower-case) and returns the PBKDF2-SHA256
// digest as a fixed-length lowercase hex string.
func (h *Hasher) Hash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	digest := pbkdf2.Key([]byte(normalized), h.secret, h.iterations, keyLength, sha256.New)
	return hex.EncodeToString(digest)
}

func loadOrCreateSecret(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		secret, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("hash secret file %s is not valid hex: %w", path, err)
		}
		logrus.Infof("Loaded hash secret from %s", path)
		return secret, nil
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		secret := make([]byte, keyLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate hash secret: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
			return nil, fmt.Errorf("failed to persist hash secret to %s: %w", path, err)
		}
		logrus.Infof("Generated and saved new hash secret to %s", path)
		return secret, nil
	}

	logrus.Warnf("Hash secret path %s not accessible, using development fallback", path)
	return []byte(devFallbackSecret), nil
}
