package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Delimiter separates fields inside a frame's text payload. Field values
// containing the delimiter are not escaped; this is the compatibility
// baseline the game client expects.
const Delimiter = ","

// HeaderSize is the size of the frame length prefix in bytes.
const HeaderSize = 4

// ErrFrameTooLarge is returned by Decode when a frame header declares a
// payload larger than the configured maximum. Unlike an incomplete frame,
// this is a protocol violation: the caller must tear the connection down.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// utf16le matches the client's text encoding (C# Encoding.Unicode): UTF-16
// little-endian, no byte order mark.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode serializes fields into a single wire frame: a 4-byte little-endian
// payload length followed by the comma-joined fields encoded as UTF-16LE.
//
// Precondition: fields must be non-empty; the first field is the signifier.
// Postcondition: Decode applied to the result yields fields, provided no
// field value contains the delimiter.
func Encode(fields []string) ([]byte, error) {
	payload, err := utf16le.NewEncoder().Bytes([]byte(strings.Join(fields, Delimiter)))
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	frame := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Message builds the field list for a message: the signifier followed by its
// arguments.
func Message(signifier int, args ...string) []string {
	return append([]string{strconv.Itoa(signifier)}, args...)
}

// Decode attempts to extract one complete frame from the front of buf.
//
// It returns the decoded fields and the number of bytes consumed. A consumed
// count of zero with a nil error means no complete frame is buffered yet;
// frames may arrive split across reads, so the caller must wait for more
// bytes rather than treat this as an error. ErrFrameTooLarge is the only
// fatal outcome; maxFrame <= 0 disables the size check.
func Decode(buf []byte, maxFrame int) ([]string, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}

	size := binary.LittleEndian.Uint32(buf)
	if maxFrame > 0 && int64(size) > int64(maxFrame) {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, size, maxFrame)
	}
	if len(buf) < HeaderSize+int(size) {
		return nil, 0, nil
	}

	text, err := utf16le.NewDecoder().Bytes(buf[HeaderSize : HeaderSize+int(size)])
	if err != nil {
		return nil, 0, fmt.Errorf("decoding payload: %w", err)
	}

	return strings.Split(string(text), Delimiter), HeaderSize + int(size), nil
}

// Signifier parses the leading field of a decoded message.
//
// Postcondition: Returns the integer signifier, or an error if the message is
// empty or the first field is not an integer.
func Signifier(fields []string) (int, error) {
	if len(fields) == 0 {
		return 0, errors.New("empty message")
	}
	sig, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parsing signifier %q: %w", fields[0], err)
	}
	return sig, nil
}
