package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken(TokenSize128)
	require.NoError(t, err)
	b, err := GenerateToken(TokenSize128)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Len(t, a, 22) // 16 bytes base64url, no padding

	_, err = GenerateToken(0)
	require.Error(t, err)
	_, err = GenerateToken(-4)
	require.Error(t, err)
}

func TestFingerprintTokenIsStable(t *testing.T) {
	t.Parallel()

	tok := MustGenerateToken(TokenSize256)
	require.Equal(t, FingerprintToken(tok), FingerprintToken(tok))
	require.NotEqual(t, FingerprintToken(tok), FingerprintToken(tok+"x"))
	require.Len(t, FingerprintToken(tok), 43)
}
