package qrpayload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := Encode("01JEXAMPLESESSIONID0000000")
	require.NoError(t, err)
	require.Contains(t, raw, TypeTag)

	id, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "01JEXAMPLESESSIONID0000000", id)
}

func TestEncodeRejectsEmptySession(t *testing.T) {
	t.Parallel()

	_, err := Encode("")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Encode("   ")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsForeignPayloads(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":          "hello world",
		"empty":             "",
		"wrong type tag":    `{"type":"wifi","session_id":"abc"}`,
		"missing session":   `{"type":"qr_login"}`,
		"blank session":     `{"type":"qr_login","session_id":"  "}`,
		"plain url":         "https://example.com/login",
		"otpauth url":       "otpauth://totp/crossgate:user?secret=ABC",
		"json array":        `["qr_login","abc"]`,
		"number session id": `{"type":"qr_login","session_id":42}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRenderPNG(t *testing.T) {
	t.Parallel()

	raw, err := Encode("01JEXAMPLESESSIONID0000000")
	require.NoError(t, err)

	img, err := RenderPNG(raw, 250)
	require.NoError(t, err)
	require.NotEmpty(t, img)
	require.Equal(t, byte(0x89), img[0]) // PNG signature
}
