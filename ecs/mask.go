package ecs

import (
	"iter"
	"math/bits"
	"strconv"
)

// MaskWidth is the number of distinct component types a single registry can hold.
// Every component type owns exactly one bit of a Mask, so this is a hard limit.
const MaskWidth = 64

// Mask is a bitset of component types. The mask of an archetype is the OR of the
// bits of all its component types and uniquely identifies that archetype.
type Mask uint64

// Bit returns the unit mask for the given bit offset.
func Bit(offset int) Mask {
	return Mask(1) << uint(offset)
}

// Has reports whether the bit at offset is set.
func (m Mask) Has(offset int) bool {
	return m&Bit(offset) != 0
}

// Contains reports whether every bit of other is also set in m.
func (m Mask) Contains(other Mask) bool {
	return m&other == other
}

// Intersects reports whether m and other share at least one bit.
func (m Mask) Intersects(other Mask) bool {
	return m&other != 0
}

// IsZero reports whether no bits are set.
func (m Mask) IsZero() bool {
	return m == 0
}

// Count returns the number of set bits.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Offset returns the offset of the lowest set bit, or -1 for the empty mask.
func (m Mask) Offset() int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(m))
}

// Offsets iterates over the offsets of all set bits in ascending order.
func (m Mask) Offsets() iter.Seq[int] {
	return func(yield func(int) bool) {
		for rest := m; rest != 0; rest &= rest - 1 {
			if !yield(bits.TrailingZeros64(uint64(rest))) {
				return
			}
		}
	}
}

// Units iterates over the single-bit masks that make up m.
func (m Mask) Units() iter.Seq[Mask] {
	return func(yield func(Mask) bool) {
		for rest := m; rest != 0; rest &= rest - 1 {
			if !yield(rest & -rest) {
				return
			}
		}
	}
}

func (m Mask) String() string {
	return "m" + strconv.FormatUint(uint64(m), 2)
}
