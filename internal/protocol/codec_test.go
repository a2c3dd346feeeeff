package protocol_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fields := protocol.Message(protocol.ClientCreateAccount, "alice", "pw1")

	frame, err := protocol.Encode(fields)
	require.NoError(t, err)

	decoded, consumed, err := protocol.Decode(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, fields, decoded)
}

func TestEncodeProducesUTF16LE(t *testing.T) {
	frame, err := protocol.Encode([]string{"0"})
	require.NoError(t, err)

	// "0" is a single UTF-16 code unit: 0x30 0x00, length prefix 2.
	require.Len(t, frame, protocol.HeaderSize+2)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(frame))
	assert.Equal(t, byte(0x30), frame[4])
	assert.Equal(t, byte(0x00), frame[5])
}

func TestDecodeIncompleteFrame(t *testing.T) {
	frame, err := protocol.Encode(protocol.Message(protocol.ClientOnQueue, "room1"))
	require.NoError(t, err)

	// Every proper prefix of a frame must decode to "no message yet".
	for i := 0; i < len(frame); i++ {
		fields, consumed, err := protocol.Decode(frame[:i], 0)
		assert.NoError(t, err, "prefix of %d bytes", i)
		assert.Zero(t, consumed, "prefix of %d bytes", i)
		assert.Nil(t, fields, "prefix of %d bytes", i)
	}
}

func TestDecodeCoalescedFrames(t *testing.T) {
	first, err := protocol.Encode(protocol.Message(protocol.ClientLogin, "alice", "pw1"))
	require.NoError(t, err)
	second, err := protocol.Encode(protocol.Message(protocol.ClientOnQueue, "room1"))
	require.NoError(t, err)

	buf := append(append([]byte{}, first...), second...)

	fields, consumed, err := protocol.Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(first), consumed)
	assert.Equal(t, []string{"1", "alice", "pw1"}, fields)

	fields, consumed, err = protocol.Decode(buf[consumed:], 0)
	require.NoError(t, err)
	assert.Equal(t, len(second), consumed)
	assert.Equal(t, []string{"2", "room1"}, fields)
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	frame := make([]byte, protocol.HeaderSize)
	binary.LittleEndian.PutUint32(frame, 1<<20)

	_, _, err := protocol.Decode(frame, 65536)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
}

func TestDelimiterInFieldCorruptsParsing(t *testing.T) {
	// The delimiter is not escaped: a payload containing "," splits into
	// extra fields on decode. Documented compatibility behavior.
	frame, err := protocol.Encode([]string{"6", "a,b"})
	require.NoError(t, err)

	fields, _, err := protocol.Decode(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "a", "b"}, fields)
}

func TestSignifier(t *testing.T) {
	sig, err := protocol.Signifier([]string{"7", "payload"})
	require.NoError(t, err)
	assert.Equal(t, protocol.ClientPlayerWin, sig)

	_, err = protocol.Signifier(nil)
	assert.Error(t, err)

	_, err = protocol.Signifier([]string{"seven"})
	assert.Error(t, err)
}

// TestRoundTripProperty verifies decode(encode(fields)) == fields for any
// field list whose values avoid the delimiter.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fields := rapid.SliceOfN(rapid.StringMatching(`[^,]*`), 1, 8).Draw(rt, "fields")

		frame, err := protocol.Encode(fields)
		require.NoError(rt, err)

		decoded, consumed, err := protocol.Decode(frame, 0)
		require.NoError(rt, err)
		assert.Equal(rt, len(frame), consumed)
		assert.Equal(rt, strings.Join(fields, ","), strings.Join(decoded, ","))
	})
}
