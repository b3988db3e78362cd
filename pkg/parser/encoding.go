package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrUnsupportedEncoding is returned when text cannot be converted back to its
// declared encoding.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

var (
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
	codingCookie = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)
	blankOrNote  = regexp.MustCompile(`^[ \t\f]*(?:[#\r\n]|$)`)
)

// Encoding describes how a source file is stored on disk.
type Encoding struct {
	Name string
	BOM  bool
	enc  encoding.Encoding // nil means UTF-8
}

// UTF8 is the default source encoding.
var UTF8 = Encoding{Name: "utf-8"}

// Latin1 is the fallback for undecodable or unknown declarations.
var Latin1 = Encoding{Name: "latin-1", enc: charmap.ISO8859_1}

// DetectEncoding honors a UTF-8 BOM and a PEP 263 coding declaration on the
// first or second line. Unknown declarations fall back to latin-1.
func DetectEncoding(raw []byte) Encoding {
	if bytes.HasPrefix(raw, utf8BOM) {
		return Encoding{Name: "utf-8", BOM: true}
	}

	first, rest, _ := bytes.Cut(raw, []byte("\n"))
	name := cookie(first)
	if name == "" && blankOrNote.Match(first) {
		second, _, _ := bytes.Cut(rest, []byte("\n"))
		name = cookie(second)
	}
	if name == "" {
		if utf8.Valid(raw) {
			return UTF8
		}
		return Latin1
	}
	return lookupEncoding(name)
}

func cookie(line []byte) string {
	m := codingCookie.FindSubmatch(line)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func lookupEncoding(name string) Encoding {
	norm := strings.ReplaceAll(strings.ToLower(name), "_", "-")
	switch {
	case norm == "utf-8" || norm == "utf8" || strings.HasPrefix(norm, "utf-8-"):
		return UTF8
	case norm == "latin-1" || norm == "latin1" || norm == "iso-8859-1" || norm == "iso8859-1" || norm == "l1":
		return Latin1
	}
	enc, err := ianaindex.IANA.Encoding(norm)
	if err != nil || enc == nil {
		return Latin1
	}
	return Encoding{Name: norm, enc: enc}
}

// Decode converts raw bytes into the UTF-8 text the parser works on.
// The BOM, if any, is stripped and restored by Encode.
func (e Encoding) Decode(raw []byte) ([]byte, error) {
	if e.BOM {
		raw = bytes.TrimPrefix(raw, utf8BOM)
	}
	if e.enc == nil {
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: invalid utf-8", ErrUnsupportedEncoding)
		}
		return raw, nil
	}
	text, err := e.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnsupportedEncoding, e.Name, err)
	}
	return text, nil
}

// Encode converts UTF-8 text back into the file's encoding.
func (e Encoding) Encode(text []byte) ([]byte, error) {
	out := text
	if e.enc != nil {
		var err error
		out, err = e.enc.NewEncoder().Bytes(text)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %s: %v", ErrUnsupportedEncoding, e.Name, err)
		}
	}
	if e.BOM {
		out = append(append([]byte{}, utf8BOM...), out...)
	}
	return out, nil
}

func (e Encoding) String() string {
	if e.Name == "" {
		return UTF8.Name
	}
	return e.Name
}
