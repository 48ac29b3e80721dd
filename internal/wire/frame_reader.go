package wire

import (
	"bufio"
	"io"
)

// MaxFrameSize bounds a single frame; peers historically read 1024 bytes per frame.
const MaxFrameSize = 1024

// FrameReader splits a byte stream into self-delimited frames.
//
// A frame starting "#!" ends at the next '!'; any other '#' frame ends at an
// 'e' that is not an exponent marker. Bytes before a '#' are returned as a
// frame of their own so the caller's decoder rejects them.
//
// An 'e' after the value of a non-final tag can only be an exponent, so the
// reader waits for the next byte to decide. After the final tag ("z" or "D")
// the 'e' ends the frame unless an exponent continuation is already buffered;
// a peer splitting a frame inside the last value's exponent is not supported.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, MaxFrameSize)}
}

// ReadFrame returns the next frame. io.EOF is returned only on a frame
// boundary; a stream ending mid-frame yields io.ErrUnexpectedEOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	b, err := fr.skipSpace()
	if err != nil {
		return nil, err
	}
	frame := []byte{b}
	if b != frameStart {
		for len(frame) < MaxFrameSize && fr.r.Buffered() > 0 {
			next, _ := fr.r.Peek(1)
			if next[0] == frameStart {
				break
			}
			c, _ := fr.r.ReadByte()
			frame = append(frame, c)
		}
		return frame, nil
	}
	var tag []byte
	inTag := false
	for len(frame) < MaxFrameSize {
		c, err := fr.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, c)
		if frame[1] == '!' {
			if c == '!' && len(frame) > 2 {
				return frame, nil
			}
			continue
		}
		if c == frameEnd && !fr.exponentAhead(frame, string(tag)) {
			return frame, nil
		}
		switch {
		case isLetter(c) && c != 'e' && c != 'E':
			if !inTag {
				tag = tag[:0]
			}
			tag = append(tag, c)
			inTag = true
		default:
			inTag = false
		}
	}
	return frame, nil
}

// exponentAhead reports whether the 'e' just appended to the value of tag
// continues a number.
func (fr *FrameReader) exponentAhead(frame []byte, tag string) bool {
	if len(frame) < 2 || !isDigit(frame[len(frame)-2]) && frame[len(frame)-2] != '.' {
		return false
	}
	if !finalTag(tag) {
		peek, err := fr.r.Peek(1)
		return err == nil && (isDigit(peek[0]) || isSign(peek[0]))
	}
	if fr.r.Buffered() == 0 {
		return false
	}
	peek, _ := fr.r.Peek(1)
	return isDigit(peek[0]) || isSign(peek[0])
}

func finalTag(tag string) bool {
	return tag == vecTags[len(vecTags)-1] || tag == startTags[len(startTags)-1]
}

func (fr *FrameReader) skipSpace() (byte, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}
