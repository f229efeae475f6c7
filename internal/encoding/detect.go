package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffLen is how much of the input is inspected before choosing a decoder.
const sniffLen = 4096

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Spreadsheet exports from UK office machines are mostly Windows-1252; the
// ISO variants show up when files pass through older rostering tools.
var legacyCharsets = map[string]xenc.Encoding{
	"windows-1252": charmap.Windows1252,
	"ISO-8859-1":   charmap.Windows1252,
	"ISO-8859-15":  charmap.ISO8859_15,
	"ISO-8859-9":   charmap.ISO8859_9,
	"windows-1250": charmap.Windows1250,
	"ISO-8859-2":   charmap.ISO8859_2,
}

// Detect reports the charset NewUTF8Reader would decode data as.
func Detect(data []byte) string {
	name, _ := choose(data)
	return name
}

// NewUTF8Reader returns a reader that decodes r to UTF-8.
//
// A BOM wins, then valid UTF-8 passes through untouched, then chardet's best
// guess among the legacy charsets, and finally Windows-1252.
func NewUTF8Reader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)

	buf, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("peek: %w", err)
	}

	if bytes.HasPrefix(buf, bomUTF8) {
		_, _ = br.Discard(len(bomUTF8))
		return br, nil
	}

	_, e := choose(buf)
	if e == nil {
		return br, nil
	}

	return transform.NewReader(br, e.NewDecoder()), nil
}

// choose returns the charset name and the decoder to apply. A nil encoding
// means the input is already UTF-8.
func choose(buf []byte) (string, xenc.Encoding) {
	switch {
	case bytes.HasPrefix(buf, bomUTF8):
		return "UTF-8", nil
	case bytes.HasPrefix(buf, bomUTF16LE):
		return "UTF-16LE", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case bytes.HasPrefix(buf, bomUTF16BE):
		return "UTF-16BE", unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case validUTF8(buf):
		return "UTF-8", nil
	}

	if res, err := chardet.NewTextDetector().DetectBest(buf); err == nil {
		if res.Charset == "UTF-8" {
			return "UTF-8", nil
		}

		if e, ok := legacyCharsets[res.Charset]; ok {
			return res.Charset, e
		}
	}

	return "windows-1252", charmap.Windows1252
}

// validUTF8 accepts a prefix that ends partway through a multi-byte rune.
func validUTF8(buf []byte) bool {
	if utf8.Valid(buf) {
		return true
	}

	for cut := 1; cut < utf8.UTFMax && cut < len(buf); cut++ {
		if utf8.Valid(buf[:len(buf)-cut]) {
			return !utf8.FullRune(buf[len(buf)-cut:])
		}
	}

	return false
}
