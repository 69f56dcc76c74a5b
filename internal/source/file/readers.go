package file

// readers.go turns a raw byte stream into validated UTF-8 text for the CSV
// and JSON decoders without buffering the whole file:
//
//   - bomSkipper drops a leading UTF-8 byte order mark (Excel writes one)
//   - utf8Validator fails the stream on the first invalid UTF-8 sequence
//   - declared non-UTF-8 encodings go through an x/text decoder instead
//
// Use textReader to apply them in the right order.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// textReader wraps r so that reads yield UTF-8 text decoded from the
// declared encoding label. An empty label means UTF-8.
func textReader(r io.Reader, label string) (io.Reader, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return newUTF8Validator(newBOMSkipper(r)), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return newUTF8Validator(newBOMSkipper(r)), nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// newBOMSkipper returns a reader positioned after a UTF-8 BOM, if present.
func newBOMSkipper(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// invalidUTF8Error is returned by utf8Validator. Offset is the byte position
// of the first invalid sequence in the validated stream.
type invalidUTF8Error struct {
	Offset int64
}

func (e *invalidUTF8Error) Error() string {
	return fmt.Sprintf("encoding error: invalid UTF-8 at byte %d", e.Offset)
}

// utf8Validator passes bytes through unchanged and fails on invalid UTF-8.
// A multi-byte sequence split across two reads is held back until the next
// read completes it.
type utf8Validator struct {
	r       io.Reader
	pending []byte
	offset  int64
	err     error
}

func newUTF8Validator(r io.Reader) *utf8Validator {
	return &utf8Validator{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (v *utf8Validator) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	n := copy(p, v.pending)
	v.pending = v.pending[:0]

	m, err := v.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	end := n
	if err == nil {
		end -= incompleteTrailingBytes(p[:n])
		v.pending = append(v.pending, p[end:n]...)
	}

	if bad := firstInvalid(p[:end]); bad >= 0 {
		v.err = &invalidUTF8Error{Offset: v.offset + int64(bad)}
		v.offset += int64(bad)
		return bad, v.err
	}
	v.offset += int64(end)
	return end, err
}

// firstInvalid returns the index of the first invalid sequence, or -1.
func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// incompleteTrailingBytes returns how many bytes at the end of data start a
// multi-byte sequence that has not been completed yet.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
