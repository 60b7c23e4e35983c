// Package token issues and verifies the signed access tokens embedded in
// the deep links sent to clients. A token carries the resolved epic id and
// an HMAC-SHA256 signature over it.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrSignature = errors.New("token signature mismatch")
)

type claims struct {
	EpicID string `json:"epic_id"`
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign produces a token of the form base64url(payload).base64url(sig).
func (s *Signer) Sign(epicID string) string {
	payload, _ := json.Marshal(claims{EpicID: epicID})
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded)
}

// Verify checks the signature and returns the embedded epic id.
func (s *Signer) Verify(tok string) (string, error) {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return "", ErrMalformed
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(sig)) {
		return "", ErrSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c.EpicID, nil
}

func (s *Signer) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
