package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	a := New("s3cret", time.Hour)

	token, err := a.Issue("user-1", "Ada")
	require.NoError(t, err)

	id, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Name: "Ada"}, id)

	_, err = New("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	a := New("s3cret", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Issue("user-1", "")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	a := New("s3cret", time.Hour)
	token, err := a.Issue("user-1", "Ada")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	id, err := a.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err = a.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.Name)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Token "+token)
	_, err = a.FromRequest(r)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.FromRequest(httptest.NewRequest("GET", "/ws?user_id=spoof", nil))
	assert.ErrorIs(t, err, ErrMissingToken, "user_id is ignored when a secret is set")
}

func TestDevMode(t *testing.T) {
	a := New("", 0)
	assert.True(t, a.DevMode())

	id, err := a.FromRequest(httptest.NewRequest("GET", "/ws?user_id=u7&name=Bob", nil))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u7", Name: "Bob"}, id)

	_, err = a.FromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Issue("u7", "")
	assert.Error(t, err)
}
