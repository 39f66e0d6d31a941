package codec

import "errors"

// Format P run-length commands (2-bit prefix).
const (
	pCmdRun0     = 0
	pCmdRun1     = 1
	pCmdShortRun = 2 // 2-bit payload, run 2..5
	pCmdLongRun  = 3 // unary width prefix, then payload
)

// Long run codes start at 3 payload bits; a width of 24 is the end code.
const (
	pLongRunMinBits = 3
	pEndCodeBits    = 24
)

// Stamp increments in bytes, each close to one 640-pixel scanline.
const (
	stampNarrow = 1914 // 638 pixels
	stampLeft   = 1917 // 639 pixels
	stampStride = 1920 // 640 pixels
	stampRight  = 1923 // 641 pixels
	stampWide   = 1926 // 642 pixels
)

// pDecoder holds the state of one format P decode.
type pDecoder struct {
	cur   *BitCursor
	out   []byte
	color [3]byte // most recent literal color
}

// DecodeP decompresses a format P block into out and runs the gap-fill pass.
// out is cleared first. Running out of input ends the stream unless
// opts.StrictStreamEnd is set.
func DecodeP(block, out []byte, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	clear(out)
	d := &pDecoder{
		cur: NewBitCursor(block, payloadOffset),
		out: out,
	}

	if err := d.run(); err != nil {
		if opts.StrictStreamEnd || !errors.Is(err, ErrStreamOverrun) {
			return err
		}
	}

	FillGaps(out, d.color)
	return nil
}

func (d *pDecoder) run() error {
	pos := 0
	for pos < len(d.out) {
		run, end, err := d.runLength()
		if err != nil {
			return err
		}
		if end {
			return nil
		}

		pos += run * BytesPerPixel
		if pos >= len(d.out) {
			return nil
		}

		var c [3]byte
		for i := range c {
			v, err := d.cur.ReadBits(8)
			if err != nil {
				return err
			}
			c[i] = byte(v)
		}
		copy(d.out[pos:pos+BytesPerPixel], c[:])
		d.color = c

		stamp, err := d.cur.ReadBit()
		if err != nil {
			return err
		}
		if stamp {
			if err := d.stamp(pos); err != nil {
				return err
			}
		}

		pos += BytesPerPixel
	}
	return nil
}

// runLength decodes the number of pixels to skip before the next literal.
// end is true when the end code was read.
func (d *pDecoder) runLength() (run int, end bool, err error) {
	cmd, err := d.cur.ReadBits(2)
	if err != nil {
		return 0, false, err
	}

	switch cmd {
	case pCmdRun0, pCmdRun1:
		return int(cmd), false, nil
	case pCmdShortRun:
		v, err := d.cur.ReadBits(2)
		if err != nil {
			return 0, false, err
		}
		return int(v) + 2, false, nil
	}

	bits := pLongRunMinBits
	for {
		more, err := d.cur.ReadBit()
		if err != nil {
			return 0, false, err
		}
		if !more {
			break
		}
		bits++
		if bits >= pEndCodeBits {
			return 0, true, nil
		}
	}

	v, err := d.cur.ReadBits(bits)
	if err != nil {
		return 0, false, err
	}
	return (1<<bits - 1) + int(v) - 1, false, nil
}

// stamp repeats the current color at roughly one-scanline steps from pos
// until a stop code is read or the next step would leave the buffer.
func (d *pDecoder) stamp(pos int) error {
	for {
		sel, err := d.cur.ReadBits(2)
		if err != nil {
			return err
		}

		var inc int
		switch sel {
		case 0:
			more, err := d.cur.ReadBit()
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
			wide, err := d.cur.ReadBit()
			if err != nil {
				return err
			}
			inc = stampNarrow
			if wide {
				inc = stampWide
			}
		case 1:
			inc = stampLeft
		case 2:
			inc = stampStride
		default:
			inc = stampRight
		}

		pos += inc
		if pos+2 >= len(d.out) {
			return nil
		}
		copy(d.out[pos:pos+BytesPerPixel], d.color[:])
	}
}

// FillGaps replaces every (0,0,0) triple in buf with the most recent
// non-zero triple before it, starting from seed. Genuine black pixels are
// indistinguishable from gaps and are filled too.
func FillGaps(buf []byte, seed [3]byte) {
	last := seed
	for i := 0; i+BytesPerPixel <= len(buf); i += BytesPerPixel {
		px := buf[i : i+BytesPerPixel]
		if px[0] == 0 && px[1] == 0 && px[2] == 0 {
			copy(px, last[:])
			continue
		}
		copy(last[:], px)
	}
}
