package npy

import (
	"encoding/binary"
	"io"
	"math/bits"
)

// swapBytes reverses each unit-byte scalar in b in place. len(b) must be a
// multiple of unit.
func swapBytes(b []byte, unit int) {
	switch unit {
	case 2:
		for i := 0; i+1 < len(b); i += 2 {
			b[i], b[i+1] = b[i+1], b[i]
		}
	case 4:
		for i := 0; i+3 < len(b); i += 4 {
			binary.LittleEndian.PutUint32(b[i:], bits.ReverseBytes32(binary.LittleEndian.Uint32(b[i:])))
		}
	case 8:
		for i := 0; i+7 < len(b); i += 8 {
			binary.LittleEndian.PutUint64(b[i:], bits.ReverseBytes64(binary.LittleEndian.Uint64(b[i:])))
		}
	}
}

// writeSwapped writes data to w with every scalar byte-swapped, using a
// scratch buffer of at most chunk bytes.
func writeSwapped(w io.Writer, data []byte, d Descriptor, chunk int) error {
	chunk -= chunk % d.Width
	if chunk < d.Width {
		chunk = d.Width
	}
	scratch := make([]byte, min(chunk, len(data)))
	unit := d.swapUnit()
	for len(data) > 0 {
		n := copy(scratch, data)
		swapBytes(scratch[:n], unit)
		if _, err := w.Write(scratch[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
