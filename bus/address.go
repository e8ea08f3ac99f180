package bus

import (
	"fmt"
	"math/bits"
	"strings"
)

// MaxChildren is the upper bound on the number of addressable secondaries.
// ChildSet is a single 64-bit word, so the bound cannot exceed 64.
const MaxChildren = 64

// Address identifies a secondary on the line.
type Address uint8

const (
	// Broadcast addresses every secondary in the registration window.
	Broadcast Address = 0xFF
	// Unassigned is the stored address of a node that was never registered.
	Unassigned Address = Broadcast
)

// Valid reports whether a is a unicast address below limit.
func (a Address) Valid(limit int) bool {
	return int(a) < limit && a != Broadcast
}

func (a Address) String() string {
	if a == Broadcast {
		return "broadcast"
	}

	return fmt.Sprintf("%d", uint8(a))
}

// ChildSet is a bitset with one bit per address in [0, MaxChildren).
type ChildSet uint64

// Has reports whether a is in the set.
func (s ChildSet) Has(a Address) bool {
	if int(a) >= MaxChildren {
		return false
	}

	return s&(1<<a) != 0
}

// With returns s with a added.
func (s ChildSet) With(a Address) ChildSet {
	if int(a) >= MaxChildren {
		return s
	}

	return s | 1<<a
}

// Without returns s with a removed.
func (s ChildSet) Without(a Address) ChildSet {
	if int(a) >= MaxChildren {
		return s
	}

	return s &^ (1 << a)
}

// Len returns the number of addresses in the set.
func (s ChildSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// LowestFree returns the lowest address below limit that is not in the set.
func (s ChildSet) LowestFree(limit int) (Address, bool) {
	if limit > MaxChildren {
		limit = MaxChildren
	}
	free := ^uint64(s)
	if free == 0 {
		return 0, false
	}
	a := bits.TrailingZeros64(free)
	if a >= limit {
		return 0, false
	}

	return Address(a), true //nolint:gosec // a < 64
}

// Addresses returns the members in ascending order.
func (s ChildSet) Addresses() []Address {
	out := make([]Address, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, Address(bits.TrailingZeros64(v))) //nolint:gosec // < 64
	}

	return out
}

func (s ChildSet) String() string {
	addrs := s.Addresses()
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}

	return "{" + strings.Join(parts, ",") + "}"
}
