package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Administrador Empresa ")
	require.NoError(t, err)
	assert.Equal(t, RoleCompanyAdmin, role)

	role, err = ParseRole("Postulante")
	require.NoError(t, err)
	assert.Equal(t, RolePostulante, role)

	_, err = ParseRole("postulante")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = ParseRole("")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestIdentityExpired(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	id := Identity{SubjectID: "u1"}
	assert.False(t, id.Expired(now))

	id.TokenExpiry = now.Add(time.Minute)
	assert.False(t, id.Expired(now))

	id.TokenExpiry = now
	assert.True(t, id.Expired(now))
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("csrfsecret")
	sess := &Session{ID: "abc"}

	token, err := m.EnsureToken(sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := m.EnsureToken(sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(sess, token))
	assert.ErrorIs(t, m.VerifyToken(sess, "nope"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(sess, ""), ErrCSRFTokenMissing)

	m.Rotate(sess)
	assert.ErrorIs(t, m.VerifyToken(sess, token), ErrCSRFTokenMissing)
	rotated, err := m.EnsureToken(sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
}
