package homeworks

import (
	"bytes"
	"fmt"
)

// defaultMaxLineLength bounds a single protocol line when no limit is
// configured. Integration protocol lines are short; anything near this
// size means the stream is corrupt or the device is misbehaving.
const defaultMaxLineLength = 2048

// lineFramer splits a raw byte stream into protocol lines.
//
// Chunks arrive from the network in arbitrary sizes; the framer buffers
// partial lines across chunks, including a terminator split over a chunk
// boundary. Lines are split on "\n" with a preceding "\r" stripped, which
// accepts both the protocol's CRLF and bare LF from lenient firmware.
//
// Not safe for concurrent use: only the connection's receive loop feeds it.
type lineFramer struct {
	buf bytes.Buffer
	max int
}

// newLineFramer creates a framer with the given maximum line length.
// Zero or negative means the default.
func newLineFramer(maxLen int) *lineFramer {
	if maxLen <= 0 {
		maxLen = defaultMaxLineLength
	}
	return &lineFramer{max: maxLen}
}

// push appends a chunk and returns any complete lines it closed off.
//
// A line (or unterminated partial) longer than the maximum returns
// ErrFrameTooLong; the caller is expected to tear down the connection
// since framing can no longer be trusted. The framer itself resets so it
// can be reused after reconnection.
func (f *lineFramer) push(chunk []byte) ([]string, error) {
	f.buf.Write(chunk)

	var lines []string
	for {
		data := f.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}

		line := data[:idx]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) > f.max {
			f.reset()
			return lines, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, idx, f.max)
		}

		lines = append(lines, string(line))
		f.buf.Next(idx + 1)
	}

	// An unterminated partial beyond the limit will never become a valid
	// line; fail now instead of buffering without bound.
	if f.buf.Len() > f.max {
		n := f.buf.Len()
		f.reset()
		return lines, fmt.Errorf("%w: %d buffered bytes without terminator (max %d)", ErrFrameTooLong, n, f.max)
	}

	return lines, nil
}

// pending returns the number of buffered bytes awaiting a terminator.
func (f *lineFramer) pending() int {
	return f.buf.Len()
}

// reset discards any buffered partial line. Called after reconnection,
// since bytes from the previous connection cannot frame correctly.
func (f *lineFramer) reset() {
	f.buf.Reset()
}
