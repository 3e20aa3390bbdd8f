package cache

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readers(contents ...string) []io.Reader {
	out := make([]io.Reader, 0, len(contents))
	for _, c := range contents {
		out = append(out, bytes.NewReader([]byte(c)))
	}
	return out
}

func TestDeriveKey_Deterministic(t *testing.T) {
	t.Parallel()

	params := map[string]string{"card_size": "standard", "paper_size": "letter", "ppi": "300"}

	k1, err := DeriveKey(params, readers("front bytes", "back bytes")...)
	require.NoError(t, err)
	k2, err := DeriveKey(params, readers("front bytes", "back bytes")...)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestDeriveKey_FileOrderIndependent(t *testing.T) {
	t.Parallel()

	params := map[string]string{"quality": "75"}

	k1, err := DeriveKey(params, readers("alpha", "beta")...)
	require.NoError(t, err)
	k2, err := DeriveKey(params, readers("beta", "alpha")...)
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "file order must not affect the fingerprint")
}

func TestDeriveKey_ContentSensitive(t *testing.T) {
	t.Parallel()

	params := map[string]string{"quality": "75"}

	k1, err := DeriveKey(params, readers("alphA")...)
	require.NoError(t, err)
	k2, err := DeriveKey(params, readers("alphB")...)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2, "a single changed byte must change the key")
}

func TestDeriveKey_ParamSensitive(t *testing.T) {
	t.Parallel()

	k1, err := DeriveKey(map[string]string{"ppi": "300"})
	require.NoError(t, err)
	k2, err := DeriveKey(map[string]string{"ppi": "600"})
	require.NoError(t, err)
	k3, err := DeriveKey(map[string]string{"dpi": "300"})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveKey_RejectsReservedDelimiter(t *testing.T) {
	t.Parallel()

	_, err := DeriveKey(map[string]string{"name": "a\x1fb"})
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateKey("pdf:abc:1"))
	assert.Error(t, validateKey(""))
	assert.Error(t, validateKey("has space"))
	assert.Error(t, validateKey("ctrl\x01char"))
}
