package security

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "onetouch.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the stored form of a sealed secret. Byte fields travel as
// base64 through encoding/json.
type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

// IsSealed reports whether raw carries the envelope prefix.
func IsSealed(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte(envelopePrefix))
}

// ParseEnvelopeMetadata reads the key identity of a sealed value without
// decrypting it.
func ParseEnvelopeMetadata(raw []byte) (EnvelopeMetadata, error) {
	env, err := openEnvelope(raw)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return env.metadata(), nil
}

func (e envelope) metadata() EnvelopeMetadata {
	return EnvelopeMetadata{KeyID: e.KeyID, Version: e.Version, Algorithm: e.Algorithm}
}

func (e envelope) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(envelopePrefix)
	if err := json.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func openEnvelope(raw []byte) (envelope, error) {
	if len(raw) == 0 {
		return envelope{}, fmt.Errorf("security: ciphertext is required")
	}
	if !IsSealed(raw) {
		return envelope{}, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}
	var env envelope
	if err := json.Unmarshal(raw[len(envelopePrefix):], &env); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.ToLower(strings.TrimSpace(env.Algorithm))
	switch {
	case env.Algorithm != envelopeAlgorithm:
		return envelope{}, fmt.Errorf("security: unsupported envelope algorithm %q", env.Algorithm)
	case len(env.Nonce) == 0, len(env.Ciphertext) == 0:
		return envelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return env, nil
}
