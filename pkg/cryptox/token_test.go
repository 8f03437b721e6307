package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	first, err := GenerateToken(TokenSize128)
	require.NoError(t, err)
	second, err := GenerateToken(TokenSize128)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)

	_, err = GenerateToken(0)
	require.Error(t, err)
	_, err = GenerateToken(-1)
	require.Error(t, err)
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	fp := FingerprintToken("some-token")
	require.Equal(t, fp, FingerprintToken("some-token"), "fingerprints are deterministic")
	require.NotEqual(t, fp, FingerprintToken("other-token"))
	require.NotContains(t, fp, "some-token", "fingerprint must not embed the raw token")
}
