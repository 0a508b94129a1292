package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-onetouch/core"
)

const tokenSealLabel = "onetouch token seal"

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals stored tokens with AES-GCM. The active key
// encrypts; retired keys only decrypt, so stored tokens survive a rotation.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
	retired map[string][]byte
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

// WithRetiredKey registers a previous key that may still appear on stored
// envelopes.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		material := bytes.TrimSpace(keyMaterial)
		if strings.TrimSpace(id) == "" || len(material) == 0 {
			return
		}
		provider.retired[retiredKey(id, version)] = normalizeKey(material)
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
		retired: map[string][]byte{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

// NewSecretProviderFromConfig derives a sealing key from the application
// secret so hosts without a dedicated key can still keep tokens encrypted.
func NewSecretProviderFromConfig(cfg core.Config, opts ...Option) (*AppKeySecretProvider, error) {
	if cfg.SecretKey == "" {
		return nil, &core.ConfigurationError{Field: "secret_key", Reason: "is required to derive the token sealing key"}
	}
	mac := hmac.New(sha256.New, []byte(cfg.SecretKey))
	_, _ = mac.Write([]byte(tokenSealLabel))
	_, _ = mac.Write([]byte(strings.TrimSpace(cfg.AppID)))
	base := []Option{WithKeyID("app-secret")}
	return NewAppKeySecretProvider(mac.Sum(nil), append(base, opts...)...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, additionalData(p.keyID, p.version))
	return envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      nonce,
		Ciphertext: sealed,
	}.marshal()
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, err := openEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := p.keyFor(parsed.KeyID, parsed.Version)
	if err != nil {
		return nil, err
	}
	nonce, payload := parsed.Nonce, parsed.Ciphertext
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, additionalData(parsed.KeyID, parsed.Version))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

// NeedsReseal reports whether a stored value was sealed with a retired key.
func (p *AppKeySecretProvider) NeedsReseal(ciphertext []byte) (bool, error) {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return meta.KeyID != p.KeyID() || meta.Version != p.Version(), nil
}

func (p *AppKeySecretProvider) keyFor(id string, version int) ([]byte, error) {
	if id == p.keyID && version == p.version {
		return p.key, nil
	}
	if key, ok := p.retired[retiredKey(id, version)]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("security: unknown key %q version %d", id, version)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func additionalData(keyID string, version int) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", envelopeAlgorithm, keyID, version))
}

func retiredKey(id string, version int) string {
	return fmt.Sprintf("%s#%d", strings.TrimSpace(id), version)
}

// normalizeKey keeps valid AES key sizes and hashes anything else to 32 bytes.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
