package cpumask

// Single-byte helpers. index is a bit position in [0, 8).

// GetBit returns the power of two at index if that bit is on, else 0.
func GetBit(value byte, index uint) byte {
	return value & (1 << index)
}

// GetNormalizedBit returns 1 or 0.
func GetNormalizedBit(value byte, index uint) byte {
	return (value >> index) & 1
}

func SetBit(value byte, index uint) byte {
	return value | (1 << index)
}

func ClearBit(value byte, index uint) byte {
	return value &^ (1 << index)
}
