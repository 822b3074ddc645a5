package permission

// MaxBits is the widest permission set a [Registry] can address.
const MaxBits = 512

// Mask is a fixed 512-bit permission set.
type Mask [MaxBits / 64]uint64

func (m *Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m[bit/64]&(1<<(uint(bit)%64)) != 0
}

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] |= 1 << (uint(bit) % 64)
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] &^= 1 << (uint(bit) % 64)
}

// Union sets every bit of other in m.
func (m *Mask) Union(other Mask) {
	for i := range m {
		m[i] |= other[i]
	}
}
