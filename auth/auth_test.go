package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	a := NewTokenIssuer("secret", time.Hour)

	token, err := a.Issue("phone-agent")
	require.NoError(t, err)

	sub, err := a.Validate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "phone-agent", sub)

	sub, err = a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "phone-agent", sub)
}

func TestValidateRejects(t *testing.T) {
	a := NewTokenIssuer("secret", time.Hour)
	token, err := a.Issue("phone-agent")
	require.NoError(t, err)

	_, err = a.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewTokenIssuer("other", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWithoutExpiry(t *testing.T) {
	a := NewTokenIssuer("secret", 0)
	token, err := a.Issue("cli")
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().AddDate(5, 0, 0) }
	sub, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", sub)
}
