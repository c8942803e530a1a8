package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		header   string
		expected Encoding
		wantErr  bool
	}{
		{header: "", expected: Identity},
		{header: "identity", expected: Identity},
		{header: "gzip", expected: Gzip},
		{header: " GZIP ", expected: Gzip},
		{header: "x-gzip", expected: Gzip},
		{header: "br", expected: Brotli},
		{header: "zstd", wantErr: true},
		{header: "gzip, br", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			enc, err := ParseEncoding(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, enc)
		})
	}
}

func TestDecode(t *testing.T) {
	for _, enc := range []Encoding{Identity, Gzip, Brotli} {
		t.Run(enc.String(), func(t *testing.T) {
			decoded, err := Decode(encode(t, enc, plaintext), enc)
			require.NoError(t, err)
			assert.Equal(t, plaintext, string(decoded))
		})
	}

	t.Run("empty body", func(t *testing.T) {
		decoded, err := Decode(nil, Gzip)
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		_, err := Decode([]byte("nope"), Gzip)
		assert.Error(t, err)
	})
}

func TestEncoding_String(t *testing.T) {
	assert.Equal(t, "identity", Identity.String())
	assert.Equal(t, "gzip", Gzip.String())
	assert.Equal(t, "br", Brotli.String())
	assert.Equal(t, "unknown(7)", Encoding(7).String())
}
