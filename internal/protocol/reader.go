package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxLineBytes bounds a single inbound line.
const MaxLineBytes = 4096

// MaxNameRunes bounds a sanitized display name.
const MaxNameRunes = 32

// LineReader reads newline-delimited lines and strips the terminator.
// A line longer than MaxLineBytes is skipped up to its newline and
// reported as ErrLineTooLong; the reader stays usable after that.
type LineReader struct {
	br *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(r, MaxLineBytes)}
}

// ReadLine returns the next line. io.EOF marks a clean close.
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.br.ReadSlice('\n')
	switch {
	case err == nil:
		return strings.TrimRight(string(line[:len(line)-1]), "\r"), nil
	case errors.Is(err, bufio.ErrBufferFull):
		if err := lr.skipLine(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, MaxLineBytes)
	case errors.Is(err, io.EOF) && len(line) > 0:
		return strings.TrimRight(string(line), "\r"), nil
	default:
		return "", err
	}
}

// skipLine drops the rest of the current line including its newline.
func (lr *LineReader) skipLine() error {
	for {
		_, err := lr.br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// WriteLine encodes m and writes it followed by '\n' in one call.
func WriteLine(w io.Writer, m Message) error {
	_, err := io.WriteString(w, Encode(m)+"\n")
	return err
}

// SanitizeName normalizes a declared display name: NFC, control characters
// dropped, whitespace runs collapsed, trimmed, at most MaxNameRunes runes.
// An empty result means the caller should pick a placeholder.
func SanitizeName(raw string) string {
	s := norm.NFC.String(raw)
	var b strings.Builder
	space := false
	n := 0
	for _, r := range s {
		if n >= MaxNameRunes {
			break
		}
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		}
		if space {
			b.WriteByte(' ')
			n++
			space = false
			if n >= MaxNameRunes {
				break
			}
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
