package storage

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("occupancy-log-20260115-093000.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	filename, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "occupancy-log-20260115-093000.csv", filename)
}

func TestSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Sign("report.csv")
	require.NoError(t, err)

	_, err = signer.Verify(token + "x")
	require.Error(t, err)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	signer := Signer{secret: []byte("secret"), ttl: -time.Hour}
	token, _, err := signer.Sign("report.csv")
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.ErrorContains(t, err, "expired")
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("report.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, "report.csv", name)

	rc, err := store.Open("report.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, store.Remove("report.csv"))
	_, err = store.Open("report.csv")
	require.Error(t, err)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.csv", []byte("x"))
	require.Error(t, err)

	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
}

func TestLocalStoreSweep(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("old.csv", []byte("x"))
	require.NoError(t, err)

	// Retention of zero treats everything already written as expired.
	removed, err := store.Sweep(0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Open("old.csv")
	require.Error(t, err)
}
