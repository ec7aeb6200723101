package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adaptiva/adaptiva-api/internal/domain"
)

func TestIdentityIssuer_IssueAndVerify(t *testing.T) {
	issuer, err := domain.NewIdentityIssuer("test-secret", nil)
	require.NoError(t, err)

	t.Run("verify returns the identity embedded at issuance", func(t *testing.T) {
		token, identity, err := issuer.Issue()
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.NotEmpty(t, identity.SessionID)
		require.False(t, identity.IssuedAt.IsZero())

		sessionID, ok := issuer.Verify(token)
		require.True(t, ok)
		require.Equal(t, identity.SessionID, sessionID)
	})

	t.Run("each issued token carries a distinct identity", func(t *testing.T) {
		_, first, err := issuer.Issue()
		require.NoError(t, err)
		_, second, err := issuer.Issue()
		require.NoError(t, err)
		require.NotEqual(t, first.SessionID, second.SessionID)
	})
}

func TestIdentityIssuer_RejectsForgedTokens(t *testing.T) {
	issuer, err := domain.NewIdentityIssuer("test-secret", nil)
	require.NoError(t, err)

	token, _, err := issuer.Issue()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty string", token: ""},
		{name: "no separator", token: strings.ReplaceAll(token, ".", "")},
		{name: "too many separators", token: token + ".extra"},
		{name: "truncated signature", token: token[:len(token)-4]},
		{name: "truncated payload", token: token[4:]},
		{name: "not base64", token: "!!!.???"},
		{name: "random garbage", token: "bm90LWEtcGF5bG9hZA.bm90LWEtc2lnbmF0dXJl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := issuer.Verify(tt.token)
			require.False(t, ok)
		})
	}

	t.Run("flipped payload bit", func(t *testing.T) {
		tampered := []byte(token)
		tampered[1] ^= 0x01
		_, ok := issuer.Verify(string(tampered))
		require.False(t, ok)
	})

	t.Run("token signed with a different secret", func(t *testing.T) {
		other, err := domain.NewIdentityIssuer("other-secret", nil)
		require.NoError(t, err)

		foreign, _, err := other.Issue()
		require.NoError(t, err)

		_, ok := issuer.Verify(foreign)
		require.False(t, ok)
	})
}

func TestNewIdentityIssuer_EmptySecret(t *testing.T) {
	_, err := domain.NewIdentityIssuer("", nil)
	require.ErrorIs(t, err, domain.ErrEmptySecret)
}
