package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoReader(t *testing.T) {
	payload := `{"db1-logs":{"aliases":{}}}`
	for _, kind := range []string{TypeNone, TypeGzip, TypeZstd} {
		var buf bytes.Buffer
		w, err := WrapWriter(kind, &buf)
		require.NoError(t, err)
		_, err = io.Copy(w, strings.NewReader(payload))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.Equal(t, kind, Detect(buf.Bytes()), kind)

		r, err := AutoReader(&buf)
		require.NoError(t, err, kind)
		out, err := io.ReadAll(r)
		require.NoError(t, err, kind)
		require.NoError(t, r.Close())
		assert.Equal(t, payload, string(out), kind)
	}
}

func TestAutoReaderShortInput(t *testing.T) {
	r, err := AutoReader(strings.NewReader("a"))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "a", string(out))
}
