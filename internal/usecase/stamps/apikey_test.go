package stamps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAPIKey(t *testing.T) {
	// sha256("abc")
	require.Equal(t, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", HashAPIKey("abc"))
	require.NotEqual(t, HashAPIKey("abc"), HashAPIKey("ABC"))
}

func TestGenerateAPIKey(t *testing.T) {
	first, err := GenerateAPIKey()
	require.NoError(t, err)
	second, err := GenerateAPIKey()
	require.NoError(t, err)

	require.Len(t, first, 64)
	require.NotEqual(t, first, second)
	require.Regexp(t, "^[0-9A-F]+$", first)
}
