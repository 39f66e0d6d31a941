package codec

import "fmt"

// Lookup table geometry for format L.
const (
	lookupTableSize = 1 << 16
	lookupTableMask = lookupTableSize - 1
)

// Format L field widths.
const (
	lLiteralBits = 8
	lOffsetBits  = 16
	lLengthBits  = 4
	lMinLength   = 2
)

// lookupTable is the 64 KiB circular dictionary of format L. Indices wrap
// at 65536. A fresh zeroed table is allocated for every decode.
type lookupTable [lookupTableSize]byte

func (t *lookupTable) at(i int) byte {
	return t[i&lookupTableMask]
}

func (t *lookupTable) put(i int, v byte) {
	t[i&lookupTableMask] = v
}

// lDecoder holds the state of one format L decode.
type lDecoder struct {
	cur   *BitCursor
	table *lookupTable
	out   []byte
	n     int // bytes emitted
}

// DecodeL decompresses a format L block into out, which must be
// pre-allocated to the full pixel capacity. Unwritten bytes keep their
// previous contents.
//
// Back-references address the table at (i + offset) where i counts from 0
// within the expansion, not at a distance behind the write position, and
// the table is updated while it is being read, so an expansion may copy
// bytes it has just produced.
func DecodeL(block, out []byte) error {
	d := &lDecoder{
		cur:   NewBitCursor(block, payloadOffset),
		table: new(lookupTable),
		out:   out,
	}
	return d.run()
}

func (d *lDecoder) run() error {
	for {
		for {
			literal, err := d.cur.ReadBit()
			if err != nil {
				return err
			}
			if !literal {
				break
			}
			v, err := d.cur.ReadBits(lLiteralBits)
			if err != nil {
				return err
			}
			if err := d.emit(byte(v)); err != nil {
				return err
			}
		}

		offset, err := d.cur.ReadBits(lOffsetBits)
		if err != nil {
			return err
		}
		if offset == 0 {
			return nil
		}

		length, err := d.cur.ReadBits(lLengthBits)
		if err != nil {
			return err
		}
		if err := d.expand(int(offset), int(length)+lMinLength); err != nil {
			return err
		}
	}
}

// expand copies length+1 bytes out of the table.
func (d *lDecoder) expand(offset, length int) error {
	for i := 0; i <= length; i++ {
		if err := d.emit(d.table.at(i + offset)); err != nil {
			return err
		}
	}
	return nil
}

func (d *lDecoder) emit(v byte) error {
	if d.n >= len(d.out) {
		idx, _ := d.cur.Position()
		return fmt.Errorf("%w: output full at %d bytes (input byte %d)", ErrDecodeOverflow, d.n, idx)
	}
	d.out[d.n] = v
	d.n++
	d.table.put(d.n, v)
	return nil
}
