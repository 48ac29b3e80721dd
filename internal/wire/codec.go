// Text codec for control and telemetry frames
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	frameStart = '#'
	frameEnd   = 'e'

	stopLiteral  = "#!stop!"
	closeLiteral = "#$close"
)

// Tag sequences. Order is fixed and tags are case-sensitive.
var (
	startTags = []string{"x", "y", "z", "wh", "wt", "wd", "cs", "cd", "ws", "wD", "D"}
	vecTags   = []string{"x", "y", "z"}
)

// ErrParse is matched by every decode failure.
var ErrParse = errors.New("malformed frame")

// ParseError reports why a frame could not be decoded.
type ParseError struct {
	Frame  []byte
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse frame %q: %s", e.Frame, e.Reason)
}

// Is lets errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func parseErr(buf []byte, format string, args ...any) error {
	frame := buf
	if len(frame) > 64 {
		frame = frame[:64]
	}
	return &ParseError{Frame: append([]byte(nil), frame...), Reason: fmt.Sprintf(format, args...)}
}

// EncodeControl renders a control frame. It returns nil for an unknown kind.
func EncodeControl(f ControlFrame) []byte {
	switch f.Kind {
	case StartRun:
		p := f.Params
		return encodeTagged(startTags,
			p.Pose.X, p.Pose.Y, p.Pose.Heading,
			p.Environment.WaveHs, p.Environment.WaveTz, p.Environment.WaveDir,
			p.Environment.CurrentSpeed, p.Environment.CurrentDir,
			p.Environment.WindSpeed, p.Environment.WindDir,
			p.Duration)
	case StopRun:
		return []byte(stopLiteral)
	case CloseConnection:
		return []byte(closeLiteral)
	}
	return nil
}

// DecodeControl parses one control frame. Any missing, reordered or
// unreadable field fails the whole frame.
func DecodeControl(buf []byte) (ControlFrame, error) {
	frame := bytes.TrimRight(buf, " \t\r\n")
	if len(frame) < 2 || frame[0] != frameStart {
		return ControlFrame{}, parseErr(buf, "frame must start with %q", frameStart)
	}
	switch frame[1] {
	case '!':
		if string(frame) != stopLiteral {
			return ControlFrame{}, parseErr(buf, "bad stop command")
		}
		return StopFrame(), nil
	case '$':
		if string(frame) != closeLiteral {
			return ControlFrame{}, parseErr(buf, "bad close command")
		}
		return CloseFrame(), nil
	}
	v, err := decodeTagged(frame, startTags)
	if err != nil {
		return ControlFrame{}, err
	}
	return StartFrame(SimulationParameters{
		Pose: Pose{X: v[0], Y: v[1], Heading: v[2]},
		Environment: Environment{
			WaveHs: v[3], WaveTz: v[4], WaveDir: v[5],
			CurrentSpeed: v[6], CurrentDir: v[7],
			WindSpeed: v[8], WindDir: v[9],
		},
		Duration: v[10],
	}), nil
}

// EncodeForce renders a force command frame.
func EncodeForce(f Force) []byte {
	return encodeTagged(vecTags, f.X, f.Y, f.N)
}

// DecodeForce parses a force command frame (simulator side).
func DecodeForce(buf []byte) (Force, error) {
	v, err := decodeTagged(bytes.TrimRight(buf, " \t\r\n"), vecTags)
	if err != nil {
		return Force{}, err
	}
	return Force{X: v[0], Y: v[1], N: v[2]}, nil
}

// EncodePose renders a pose report. p.Heading is radians; the wire carries degrees.
func EncodePose(p Pose) []byte {
	return encodeTagged(vecTags, p.X, p.Y, RadToDeg(p.Heading))
}

// DecodePose parses a pose report. The returned Heading is radians.
func DecodePose(buf []byte) (Pose, error) {
	v, err := decodeTagged(bytes.TrimRight(buf, " \t\r\n"), vecTags)
	if err != nil {
		return Pose{}, err
	}
	return Pose{X: v[0], Y: v[1], Heading: DegToRad(v[2])}, nil
}

func encodeTagged(tags []string, values ...float64) []byte {
	var b bytes.Buffer
	b.WriteByte(frameStart)
	for i, tag := range tags {
		b.WriteString(tag)
		b.WriteString(strconv.FormatFloat(values[i], 'f', -1, 64))
	}
	b.WriteByte(frameEnd)
	return b.Bytes()
}

// decodeTagged walks "#<tag><num>...e" expecting exactly tags, in order.
func decodeTagged(frame []byte, tags []string) ([]float64, error) {
	if len(frame) == 0 || frame[0] != frameStart {
		return nil, parseErr(frame, "frame must start with %q", frameStart)
	}
	t := tokenizer{buf: frame, pos: 1}
	values := make([]float64, len(tags))
	for i, want := range tags {
		tag := t.tag()
		if tag != want {
			return nil, parseErr(frame, "expected tag %q at offset %d, got %q", want, t.pos-len(tag), tag)
		}
		num, ok := t.number()
		if !ok {
			return nil, parseErr(frame, "missing value for tag %q at offset %d", want, t.pos)
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, parseErr(frame, "bad value %q for tag %q", num, want)
		}
		values[i] = v
	}
	if end := t.tag(); end != string(frameEnd) || t.pos != len(frame) {
		return nil, parseErr(frame, "expected terminator %q at offset %d", frameEnd, t.pos)
	}
	return values, nil
}

type tokenizer struct {
	buf []byte
	pos int
}

func (t *tokenizer) tag() string {
	start := t.pos
	for t.pos < len(t.buf) && isLetter(t.buf[t.pos]) {
		t.pos++
	}
	return string(t.buf[start:t.pos])
}

// number scans [sign] digits [. digits] [exponent]. An 'e' only belongs to
// the number when a digit, optionally signed, follows it.
func (t *tokenizer) number() (string, bool) {
	start := t.pos
	if t.pos < len(t.buf) && isSign(t.buf[t.pos]) {
		t.pos++
	}
	digits := t.digits()
	if t.pos < len(t.buf) && t.buf[t.pos] == '.' {
		t.pos++
		digits += t.digits()
	}
	if digits == 0 {
		t.pos = start
		return "", false
	}
	if t.pos < len(t.buf) && (t.buf[t.pos] == 'e' || t.buf[t.pos] == 'E') {
		next := t.pos + 1
		if next < len(t.buf) && isSign(t.buf[next]) {
			next++
		}
		if next < len(t.buf) && isDigit(t.buf[next]) {
			t.pos = next
			t.digits()
		}
	}
	return string(t.buf[start:t.pos]), true
}

func (t *tokenizer) digits() int {
	n := 0
	for t.pos < len(t.buf) && isDigit(t.buf[t.pos]) {
		t.pos++
		n++
	}
	return n
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isSign(c byte) bool   { return c == '-' || c == '+' }
