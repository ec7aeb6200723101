package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenSeparator = "."

// ErrEmptySecret indicates the issuer was constructed without a signing secret.
var ErrEmptySecret = errors.New("session secret cannot be empty")

// IdentityIssuer mints and verifies signed anonymous session tokens.
// Tokens are self-contained: no server-side session table exists, and a
// token is trusted only if its HMAC verifies under the server secret.
type IdentityIssuer struct {
	secret []byte
	clock  Clock
}

// NewIdentityIssuer creates an issuer signing with the given secret.
func NewIdentityIssuer(secret string, clock Clock) (*IdentityIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if clock == nil {
		clock = time.Now
	}
	return &IdentityIssuer{
		secret: []byte(secret),
		clock:  clock,
	}, nil
}

// Issue mints a fresh token for a new random identity. It touches no
// shared state beyond randomness consumption.
func (i *IdentityIssuer) Issue() (string, AnonymousIdentity, error) {
	identity := AnonymousIdentity{
		SessionID: uuid.New().String(),
		IssuedAt:  i.clock().UTC(),
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		return "", AnonymousIdentity{}, err
	}

	token := base64.RawURLEncoding.EncodeToString(payload) +
		tokenSeparator +
		base64.RawURLEncoding.EncodeToString(i.sign(payload))

	return token, identity, nil
}

// Verify checks a client-presented token and returns the embedded
// session ID. Any malformed, truncated, or mis-signed token returns
// ok=false; the caller degrades to "no identity provided" rather than
// rejecting the request.
func (i *IdentityIssuer) Verify(token string) (string, bool) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 {
		return "", false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}

	if !hmac.Equal(i.sign(payload), signature) {
		return "", false
	}

	var identity AnonymousIdentity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return "", false
	}
	if identity.SessionID == "" {
		return "", false
	}

	return identity.SessionID, true
}

func (i *IdentityIssuer) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
