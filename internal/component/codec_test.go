package component

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeMessageTooShort(t *testing.T) {
	t.Parallel()

	_, _, err := Decode([]byte{0x07})
	require.ErrorIs(t, err, ErrMessageTooShort)

	_, _, err = Decode(nil)
	require.ErrorIs(t, err, ErrMessageTooShort)
}

func TestDecodeUnknownPrefix(t *testing.T) {
	t.Parallel()

	_, _, err := Decode([]byte{0xff, 0xff, 1, 2, 3})
	var unknown *UnknownPrefixError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, uint16(0xffff), unknown.Value)
}

// TestMulticodecRoundTrip is the property from spec §4's test plan:
// decode(encode(codec, bytes)) == (codec, bytes) for all four known
// codecs.
func TestMulticodecRoundTrip(t *testing.T) {
	codecs := []Codec{CodecBorsh, CodecBincode, CodecMessagePack, CodecProtobuf}

	rapid.Check(t, func(rt *rapid.T) {
		codec := codecs[rapid.IntRange(0, len(codecs)-1).Draw(rt, "codec")]
		payload := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(rt, "payload")

		wire := Encode(codec, payload)
		gotCodec, gotPayload, err := Decode(wire)
		require.NoError(t, err)
		require.Equal(t, codec, gotCodec)
		require.Equal(t, payload, gotPayload)
	})
}
