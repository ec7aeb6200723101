// Package auth implements the single check the quota subsystem needs
// from the account system: whether a bearer token names a currently
// valid authenticated session. Valid bearers bypass anonymous gating
// entirely; the token is never consulted for quota accounting.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

const tokenSeparator = "."

type accessClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// Service validates access tokens minted by the account service, which
// shares the same signing secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService creates a validator for the given signing secret.
func NewService(secret string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret: []byte(secret),
		now:    now,
	}
}

// Validate reports whether the token carries a valid signature and has
// not expired. Any malformed input is simply invalid.
func (s *Service) Validate(token string) bool {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 {
		return false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	if !hmac.Equal(s.sign(payload), signature) {
		return false
	}

	var claims accessClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}
	if claims.Subject == "" {
		return false
	}

	return claims.ExpiresAt > s.now().Unix()
}

// Mint issues a signed access token for a subject. Used by the account
// service and by tests.
func (s *Service) Mint(subject string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(accessClaims{
		Subject:   subject,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payload) +
		tokenSeparator +
		base64.RawURLEncoding.EncodeToString(s.sign(payload)), nil
}

func (s *Service) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
