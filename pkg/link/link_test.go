package link

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []FileHandle{
		{0, 0},
		{1, 2},
		{-1001234567890, 42},
		{math.MaxInt64, math.MinInt64},
		{-100, 999999999},
	}

	for _, h := range cases {
		t.Run(h.String(), func(t *testing.T) {
			token := EncodeHandle(h)
			assert.NotContains(t, token, "=")
			assert.NotContains(t, token, "+")
			assert.NotContains(t, token, "/")

			got, err := Decode(token)
			require.NoError(t, err)
			assert.Equal(t, h, got)
		})
	}
}

func TestDecodeAcceptsPadding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("12_3"))
	require.Contains(t, padded, "=")

	got, err := Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, FileHandle{12, 3}, got)
}

func TestDecodeMalformed(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	cases := map[string]string{
		"empty":          "",
		"not base64":     "@@@!!",
		"one segment":    enc("12345"),
		"three segments": enc("1_2_3"),
		"non numeric":    enc("abc_2"),
		"empty item":     enc("1_"),
		"float":          enc("1.5_2"),
		"binary garbage": enc("\x00\xff_\x01"),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(token)
			require.Error(t, err)

			var de *DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}
