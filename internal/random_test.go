package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := NewSessionToken()
	require.NoError(t, err)
	assert.Len(t, token, 22)

	sid, err := ParseSessionID(token)
	require.NoError(t, err)
	assert.Equal(t, token, sid.String())
}

func TestSessionTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		token, err := NewSessionToken()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %q", token)
		seen[token] = struct{}{}
	}
}

func TestParseSessionIDRejectsBadInput(t *testing.T) {
	_, err := ParseSessionID("!!not-base64!!")
	assert.Error(t, err)

	_, err = ParseSessionID("c2hvcnQ")
	assert.Error(t, err)
}
