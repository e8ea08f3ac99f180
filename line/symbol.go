package line

import "fmt"

// Symbol is one 9-bit line character: 8 data bits plus the marker bit.
type Symbol uint16

// MarkerBit is the auxiliary ninth bit.
const MarkerBit Symbol = 0x100

// Data returns an unmarked symbol carrying b.
func Data(b byte) Symbol {
	return Symbol(b)
}

// Marked returns a symbol carrying b with the marker bit set.
func Marked(b byte) Symbol {
	return Symbol(b) | MarkerBit
}

// Byte returns the 8 data bits.
func (s Symbol) Byte() byte {
	return byte(s)
}

// Marker reports whether the marker bit is set.
func (s Symbol) Marker() bool {
	return s&MarkerBit != 0
}

func (s Symbol) String() string {
	if s.Marker() {
		return fmt.Sprintf("*%02X", s.Byte())
	}

	return fmt.Sprintf("%02X", s.Byte())
}

// MarkedBytes converts bs to marked symbols.
func MarkedBytes(bs ...byte) []Symbol {
	out := make([]Symbol, len(bs))
	for i, b := range bs {
		out[i] = Marked(b)
	}

	return out
}
