package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("exp-1", "exp-1/attendance_sheet.xlsx")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	got, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "exp-1", got.ExportID)
	require.Equal(t, "exp-1/attendance_sheet.xlsx", got.File)
	require.WithinDuration(t, expiresAt, got.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("exp-1", "exp-1/attendance_sheet.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	got, err := signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Equal(t, "exp-1", got.ExportID)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("exp-1", "exp-1/attendance_sheet.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "exp-2"
	_, err = signer.Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = NewSignedURLSigner("other", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = signer.Verify("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("exp-1", "f.csv")
	require.Error(t, err)
}
