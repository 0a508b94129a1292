package core

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strings"
)

// Signer produces the keyed digest the provider expects over a parameter
// set: values sorted by parameter name, each followed by a newline, then the
// KIN when the set carries a TOKEN.
type Signer struct {
	secret []byte
	digest string
	param  string
}

func NewSigner(secret string, digest string) (*Signer, error) {
	if secret == "" {
		return nil, &InvalidInputError{Field: "secret_key", Reason: "is required for signing"}
	}
	digest = strings.ToLower(strings.TrimSpace(digest))
	if !knownDigest(digest) {
		return nil, &InvalidInputError{Field: "digest", Reason: "unknown digest " + digest}
	}
	param := ParamChecksum
	if digest == DigestHMACSHA1 {
		param = ParamAppCheck
	}
	return &Signer{secret: []byte(secret), digest: digest, param: param}, nil
}

// ForParam returns a copy of the signer that reports mismatches against the
// named signature parameter.
func (s *Signer) ForParam(name string) *Signer {
	if s == nil {
		return nil
	}
	out := *s
	out.param = name
	return &out
}

func (s *Signer) Param() string {
	if s == nil {
		return ""
	}
	return s.param
}

func (s *Signer) Digest() string {
	if s == nil {
		return ""
	}
	return s.digest
}

// Canonicalize returns the exact byte string that is hashed. Signature
// parameters are ignored.
func (s *Signer) Canonicalize(params map[string]string, kin string) ([]byte, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, &InvalidInputError{Field: "secret_key", Reason: "is required for signing"}
	}
	names := make([]string, 0, len(params))
	var invalid error
	for name, value := range params {
		if isSignatureParam(name) {
			continue
		}
		if !validParamName(name) && invalid == nil {
			invalid = &InvalidInputError{Field: name, Reason: "parameter name must match [A-Z0-9_]"}
		}
		if hasControlChars(value) && invalid == nil {
			invalid = &InvalidInputError{Field: name, Reason: "value contains control characters"}
		}
		names = append(names, name)
	}
	if invalid != nil {
		return nil, invalid
	}
	if hasControlChars(kin) {
		return nil, &InvalidInputError{Field: ParamKIN, Reason: "value contains control characters"}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(params[name])
		b.WriteByte('\n')
	}
	if _, hasToken := params[ParamToken]; hasToken && kin != "" {
		b.WriteString(kin)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// Sign returns the lowercase hex digest for params.
func (s *Signer) Sign(params map[string]string, kin string) (string, error) {
	data, err := s.Canonicalize(params, kin)
	if err != nil {
		return "", err
	}
	mac := hmac.New(s.hashFunc(), s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the digest and compares it in constant time.
func (s *Signer) Verify(params map[string]string, kin string, signature string) error {
	expected, err := s.Sign(params, kin)
	if err != nil {
		return err
	}
	provided := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return &SignatureMismatchError{Param: s.param}
	}
	return nil
}

func (s *Signer) hashFunc() func() hash.Hash {
	if s.digest == DigestHMACSHA1 {
		return sha1.New
	}
	return sha256.New
}

func isSignatureParam(name string) bool {
	return name == ParamChecksum || name == ParamAppCheck
}

func validParamName(name string) bool {
	if name == "" {
		return false
	}
	valid := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			valid = false
		}
	}
	return valid
}

// hasControlChars scans the whole value so timing does not depend on where
// an offending byte sits.
func hasControlChars(value string) bool {
	found := false
	for _, r := range value {
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			found = true
		}
	}
	return found
}
