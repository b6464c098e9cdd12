package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

func newTokenizer(t *testing.T) ports.Tokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key)
}

func testSession() *core.Session {
	now := time.Now().Truncate(time.Second)
	return &core.Session{
		ID:            "session-1",
		IdentityID:    "identity-1",
		Address:       "0x00000000000000000000000000000000000000aa",
		IssuedAt:      now,
		AccessExpiry:  now.Add(5 * time.Minute),
		RefreshExpiry: now.Add(5 * 24 * time.Hour),
		RefreshID:     "refresh-1",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := newTokenizer(t)
	session := testSession()

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	got, err := tk.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.IdentityID, got.IdentityID)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.WithinDuration(t, session.AccessExpiry, got.AccessExpiry, time.Second)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	tk := newTokenizer(t)
	session := testSession()

	token, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	got, err := tk.RefreshTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.IdentityID, got.IdentityID)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.WithinDuration(t, session.RefreshExpiry, got.RefreshExpiry, time.Second)
	assert.True(t, got.AccessExpiry.IsZero())
}

func TestAudiencesAreNotInterchangeable(t *testing.T) {
	tk := newTokenizer(t)
	session := testSession()

	access, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)
	refresh, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	_, err = tk.RefreshTokenToSession(access)
	assert.Error(t, err)

	_, err = tk.AccessTokenToSession(refresh)
	assert.Error(t, err)
}

func TestForeignKeyRejected(t *testing.T) {
	session := testSession()

	token, err := newTokenizer(t).SessionToAccessToken(session)
	require.NoError(t, err)

	_, err = newTokenizer(t).AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejectedAtParse(t *testing.T) {
	tk := newTokenizer(t)
	session := testSession()
	session.AccessExpiry = time.Now().Add(-time.Minute)

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	tk := newTokenizer(t)

	_, err := tk.AccessTokenToSession("not.a.jwt")
	assert.Error(t, err)

	_, err = tk.RefreshTokenToSession("")
	assert.Error(t, err)
}
