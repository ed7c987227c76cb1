package persist

// Bitmask is a growable bitset indexed by candidate position.
// The reconciler uses it as the matched-exclusion set.
type Bitmask []uint64

// Set sets the bit at index i, growing the mask as needed.
func (m *Bitmask) Set(i int) {
	w := i / 64
	if w >= len(*m) {
		*m = append(*m, make([]uint64, w-len(*m)+1)...)
	}
	(*m)[w] |= 1 << (i % 64)
}

// Has returns true if the bit at index i is set.
func (m Bitmask) Has(i int) bool {
	w := i / 64
	return w < len(m) && m[w]&(1<<(i%64)) != 0
}
