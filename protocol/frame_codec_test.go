package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// clientFrame builds a masked client->server frame for tests, mirroring
// what a real WebSocket client emits on the wire.
func clientFrame(opcode byte, fin bool, payload []byte) []byte {
	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	masked := make([]byte, len(payload))
	copy(masked, payload)
	unmaskInPlace(masked, key) // XOR is its own inverse: this masks the payload

	b0 := opcode & 0x0F
	if fin {
		b0 |= FinBit
	}
	plen := len(payload)

	var hdr []byte
	switch {
	case plen <= 125:
		hdr = []byte{b0, byte(plen) | MaskBit}
	case plen <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126 | MaskBit
		hdr[2] = byte(plen >> 8)
		hdr[3] = byte(plen)
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127 | MaskBit
		for i := 0; i < 8; i++ {
			hdr[2+i] = byte(uint64(plen) >> uint((7-i)*8))
		}
	}

	out := append([]byte{}, hdr...)
	out = append(out, key[:]...)
	out = append(out, masked...)
	return out
}

func TestFrameParserSingleTextFrame(t *testing.T) {
	p := NewFrameParser(0)
	wire := clientFrame(OpcodeText, true, []byte("hello"))
	results, err := p.Feed(wire, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].IsControl)
	require.Equal(t, "hello", string(results[0].Message.Payload))
}

func TestFrameParserFeedByteAtATime(t *testing.T) {
	p := NewFrameParser(0)
	wire := clientFrame(OpcodeBinary, true, []byte("streamed"))
	var results []Result
	for _, b := range wire {
		res, err := p.Feed([]byte{b}, true)
		require.NoError(t, err)
		results = append(results, res...)
	}
	require.Len(t, results, 1)
	require.Equal(t, "streamed", string(results[0].Message.Payload))
}

func TestFrameParserFragmentation(t *testing.T) {
	p := NewFrameParser(0)
	var wire []byte
	wire = append(wire, clientFrame(OpcodeText, false, []byte("foo"))...)
	wire = append(wire, clientFrame(OpcodeContinuation, true, []byte("bar"))...)
	results, err := p.Feed(wire, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "foobar", string(results[0].Message.Payload))
}

func TestFrameParserControlInterleavedWithFragment(t *testing.T) {
	p := NewFrameParser(0)
	var wire []byte
	wire = append(wire, clientFrame(OpcodeText, false, []byte("a"))...)
	wire = append(wire, clientFrame(OpcodePing, true, []byte("ping"))...)
	wire = append(wire, clientFrame(OpcodeContinuation, true, []byte("b"))...)
	results, err := p.Feed(wire, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].IsControl)
	require.Equal(t, byte(OpcodePing), results[0].Control.Opcode)
	require.Equal(t, "ab", string(results[1].Message.Payload))
}

func TestFrameParserRejectsUnmaskedClientFrame(t *testing.T) {
	p := NewFrameParser(0)
	wire := EncodeFrame(OpcodeText, true, []byte("x")) // server-style, unmasked
	_, err := p.Feed(wire, true)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFrameParserRejectsContinuationWithoutStart(t *testing.T) {
	p := NewFrameParser(0)
	wire := clientFrame(OpcodeContinuation, true, []byte("x"))
	_, err := p.Feed(wire, true)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFrameParserRejectsOversizedControlFrame(t *testing.T) {
	p := NewFrameParser(0)
	payload := make([]byte, 200)
	wire := clientFrame(OpcodePing, true, payload)
	_, err := p.Feed(wire, true)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFrameParserMessageTooLarge(t *testing.T) {
	p := NewFrameParser(4)
	wire := clientFrame(OpcodeBinary, true, []byte("12345"))
	_, err := p.Feed(wire, true)
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestEncodeFrameLengthExtensions(t *testing.T) {
	small := EncodeFrame(OpcodeBinary, true, make([]byte, 10))
	require.Equal(t, byte(10), small[1])

	mid := EncodeFrame(OpcodeBinary, true, make([]byte, 300))
	require.Equal(t, byte(126), mid[1])

	large := EncodeFrame(OpcodeBinary, true, make([]byte, 70000))
	require.Equal(t, byte(127), large[1])
}

func TestEncodeDecodeCloseRoundTrip(t *testing.T) {
	wire := EncodeClose(4242, "test server shutdown cleanly")
	// strip the 2-byte unmasked header to get the payload directly.
	payload := wire[2:]
	code, reason := DecodeClosePayload(payload)
	require.Equal(t, uint16(4242), code)
	require.Equal(t, "test server shutdown cleanly", reason)
}
