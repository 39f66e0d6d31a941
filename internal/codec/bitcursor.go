package codec

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// maxReadBits is the widest field any DCL code reads in one call.
const maxReadBits = 24

// BitCursor reads a byte buffer bit by bit, MSB first within each byte.
// It owns its position; one cursor serves exactly one decode call.
type BitCursor struct {
	r     *bitio.Reader
	start int // byte index of the first payload byte
	limit int // payload length in bits
	used  int // bits consumed so far
}

// NewBitCursor returns a cursor positioned at data[start] with mask 0x80.
func NewBitCursor(data []byte, start int) *BitCursor {
	if start > len(data) {
		start = len(data)
	}
	if start < 0 {
		start = 0
	}
	payload := data[start:]
	return &BitCursor{
		r:     bitio.NewReader(bytes.NewReader(payload)),
		start: start,
		limit: len(payload) * 8,
	}
}

// ReadBit consumes one bit.
func (c *BitCursor) ReadBit() (bool, error) {
	if c.used >= c.limit {
		return false, c.overrun(1)
	}
	bit, err := c.r.ReadBool()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStreamOverrun, err)
	}
	c.used++
	return bit, nil
}

// ReadBits consumes n bits (1..24). The first bit read becomes the most
// significant bit of the result. Nothing is consumed if fewer than n bits
// remain.
func (c *BitCursor) ReadBits(n int) (uint32, error) {
	if n < 1 || n > maxReadBits {
		return 0, fmt.Errorf("dcl: invalid bit count %d", n)
	}
	if c.used+n > c.limit {
		return 0, c.overrun(n)
	}
	v, err := c.r.ReadBits(uint8(n)) // #nosec G115 -- n is range-checked above
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStreamOverrun, err)
	}
	c.used += n
	return uint32(v), nil // #nosec G115 -- at most 24 bits
}

// Position returns the index of the byte holding the next bit and the mask
// selecting that bit within it.
func (c *BitCursor) Position() (index int, mask byte) {
	return c.start + c.used/8, byte(0x80 >> (c.used % 8))
}

// RemainingBits returns the number of unread bits.
func (c *BitCursor) RemainingBits() int {
	return c.limit - c.used
}

func (c *BitCursor) overrun(want int) error {
	idx, mask := c.Position()
	return fmt.Errorf("%w: need %d bits at byte %d mask 0x%02X, %d left",
		ErrStreamOverrun, want, idx, mask, c.RemainingBits())
}
