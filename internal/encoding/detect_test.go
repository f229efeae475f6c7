package encoding_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/MrJamesThe3rd/medtrain/internal/encoding"
)

const sample = "course_code;trainer_name;venue\nBLS;Zoë Brontë;Café Royal, Llandúdno\n"

func decode(t *testing.T, input []byte) string {
	t.Helper()

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(got)
}

func TestNewUTF8Reader(t *testing.T) {
	latin1, err := charmap.Windows1252.NewEncoder().Bytes([]byte(sample))
	require.NoError(t, err)

	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(sample))
	require.NoError(t, err)

	utf16be, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(sample))
	require.NoError(t, err)

	type testCase struct {
		name  string
		input []byte
	}

	tests := []testCase{
		{name: "UTF8Passthrough", input: []byte(sample)},
		{name: "UTF8BOMStripped", input: append([]byte{0xEF, 0xBB, 0xBF}, sample...)},
		{name: "Windows1252", input: latin1},
		{name: "UTF16LE", input: utf16le},
		{name: "UTF16BE", input: utf16be},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, sample, decode(t, tt.input))
		})
	}
}

func TestNewUTF8Reader_LargeInput(t *testing.T) {
	// Longer than the sniffed prefix so the reader has to keep streaming.
	var buf bytes.Buffer
	for buf.Len() < 10_000 {
		buf.WriteString(sample)
	}

	assert.Equal(t, buf.String(), decode(t, buf.Bytes()))
}

func TestNewUTF8Reader_Empty(t *testing.T) {
	assert.Empty(t, decode(t, nil))
}

func TestDetect(t *testing.T) {
	assert.Equal(t, "UTF-8", encoding.Detect([]byte(sample)))
	assert.Equal(t, "UTF-16LE", encoding.Detect([]byte{0xFF, 0xFE, 'a', 0}))
	assert.Equal(t, "Café Royal", decode(t, []byte("Caf\xe9 Royal")))
}
