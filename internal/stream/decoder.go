// Package stream turns the newline-delimited JSON body of an upstream streaming response into records and
// text deltas. Network chunks do not align with record boundaries, so decoding is incremental: bytes that are
// not yet terminated by a newline are carried over to the next chunk.
package stream

import "bytes"

// Decoder splits a byte stream into lines. The zero value is ready to use. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends p to the carried-over bytes and returns every newly completed line, without its terminator,
// in arrival order. Any trailing unterminated bytes are kept for the next call. Feed does not retain p.
func (d *Decoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(d.buf[start:start+i]))
		start += i + 1
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	return lines
}

// Finish returns the carried-over bytes as a final line, even though no terminator arrived, and resets the
// decoder. It returns nil if nothing is buffered.
func (d *Decoder) Finish() []string {
	if len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = d.buf[:0]
	return []string{line}
}

// Buffered reports how many bytes are waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
