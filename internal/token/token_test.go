package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueParse_RoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	raw, err := issuer.Issue("sess_abc", "user_1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", claims.SessionID)
	assert.Equal(t, "user_1", claims.UserID)
}

func TestParse_WrongSecret(t *testing.T) {
	raw, err := NewIssuer(testSecret, time.Hour).Issue("sess_abc", "user_1")
	require.NoError(t, err)

	other := NewIssuer([]byte("another-secret-another-secret-xx"), time.Hour)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	issuer := NewIssuer(testSecret, -time.Minute)
	raw, err := issuer.Issue("sess_abc", "user_1")
	require.NoError(t, err)

	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	_, err := issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
