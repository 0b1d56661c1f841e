package component

import (
	"encoding/binary"
	"fmt"
)

// Codec is the 2-byte big-endian multicodec tag prefixing every
// Invoke.args / InvokeResult.result / InterComponent.payload (spec §6).
// The host never transcodes between codecs — it only splits the prefix
// from the opaque payload and reattaches one on the way out.
type Codec uint16

const (
	CodecBorsh       Codec = 0x0701
	CodecBincode     Codec = 0x0702
	CodecMessagePack Codec = 0x0201
	CodecProtobuf    Codec = 0x0050
)

// String renders the codec's name, falling back to its numeric value for
// anything not in the known set (still routed unchanged, per spec: an
// unknown prefix is only an error at decode time, not at the wire level
// until something tries to interpret it).
func (c Codec) String() string {
	switch c {
	case CodecBorsh:
		return "borsh"
	case CodecBincode:
		return "bincode"
	case CodecMessagePack:
		return "messagepack"
	case CodecProtobuf:
		return "protobuf"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(c))
	}
}

func knownCodec(c Codec) bool {
	switch c {
	case CodecBorsh, CodecBincode, CodecMessagePack, CodecProtobuf:
		return true
	default:
		return false
	}
}

// ErrMessageTooShort is returned by Decode when the wire payload is
// shorter than the 2-byte prefix.
var ErrMessageTooShort = fmt.Errorf("component: message shorter than multicodec prefix")

// UnknownPrefixError reports a structurally valid but unrecognized
// multicodec tag.
type UnknownPrefixError struct{ Value uint16 }

func (e *UnknownPrefixError) Error() string {
	return fmt.Sprintf("component: unknown multicodec prefix 0x%04x", e.Value)
}

// Encode prepends codec's 2-byte big-endian tag to payload.
func Encode(codec Codec, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out, uint16(codec))
	copy(out[2:], payload)
	return out
}

// Decode splits wire into its multicodec tag and opaque payload. It does
// not attempt to deserialize the payload — only the component that
// exports handle-message knows how to do that — Decode's job is purely
// to validate the envelope and route the remainder unchanged.
func Decode(wire []byte) (Codec, []byte, error) {
	if len(wire) < 2 {
		return 0, nil, ErrMessageTooShort
	}

	codec := Codec(binary.BigEndian.Uint16(wire[:2]))
	if !knownCodec(codec) {
		return 0, nil, &UnknownPrefixError{Value: uint16(codec)}
	}

	return codec, wire[2:], nil
}
