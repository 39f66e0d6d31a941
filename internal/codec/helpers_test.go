package codec

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"
)

// field is a value written MSB-first in n bits.
type field struct {
	v uint64
	n uint8
}

func bit(b bool) field {
	if b {
		return field{1, 1}
	}
	return field{0, 1}
}

func ones(n int) []field {
	out := make([]field, n)
	for i := range out {
		out[i] = field{1, 1}
	}
	return out
}

// packBits writes fields into a zero-padded byte slice.
func packBits(tb testing.TB, fields ...field) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(tb, w.WriteBits(f.v, f.n))
	}
	require.NoError(tb, w.Close())
	return buf.Bytes()
}

// makeBlock builds a block of size bytes with the given tag and payload.
func makeBlock(tag byte, payload []byte, size int) []byte {
	b := make([]byte, size)
	b[0] = tag
	copy(b[payloadOffset:], payload)
	return b
}

// lLiteral encodes a literal flag plus byte for format L.
func lLiteral(v byte) []field {
	return []field{bit(true), {uint64(v), 8}}
}

// lBackRef encodes the end of a literal run followed by a back-reference.
func lBackRef(offset uint16, lengthField uint8) []field {
	return []field{bit(false), {uint64(offset), 16}, {uint64(lengthField), 4}}
}

// lEnd encodes the end of a literal run followed by the zero offset.
func lEnd() []field {
	return []field{bit(false), {0, 16}}
}

func concat(parts ...[]field) []field {
	var out []field
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
