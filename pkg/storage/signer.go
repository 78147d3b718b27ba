package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer mints and verifies download tokens for archived exports. A token
// embeds the filename and an expiry, bound together by an HMAC so neither
// can be altered.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer. A non-positive TTL falls back to 24h.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign returns a download token for the filename and the moment it expires.
func (s *Signer) Sign(filename string) (string, time.Time, error) {
	if filename == "" {
		return "", time.Time{}, fmt.Errorf("filename required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(filename))
	token := encoded + "." + strconv.FormatInt(expiresAt.Unix(), 10)
	return token + "." + s.mac(token), expiresAt, nil
}

// Verify checks the token signature and expiry and returns the filename.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.mac(payload)), []byte(parts[2])) {
		return "", fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid token expiry")
	}
	if time.Now().After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("token expired")
	}
	filename, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode filename: %w", err)
	}
	return string(filename), nil
}

func (s *Signer) mac(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
