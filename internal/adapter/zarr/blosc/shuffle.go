package blosc

// shuffle groups byte j of every element together. Trailing bytes that do
// not form a whole element are copied as-is.
func shuffle(typesize int, src []byte) []byte {
	dst := make([]byte, len(src))
	n := len(src) / typesize
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			dst[j*n+i] = src[i*typesize+j]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
	return dst
}

func unshuffle(typesize int, src, dst []byte) {
	n := len(src) / typesize
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			dst[i*typesize+j] = src[j*n+i]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}

// bitshuffle transposes the bit matrix of the first multiple-of-eight
// elements: bit k of byte j of element i lands in bit row j*8+k, column i.
// Remaining bytes are copied.
func bitshuffle(typesize int, src []byte) []byte {
	dst := make([]byte, len(src))
	n := len(src) / typesize
	n -= n % 8
	rowBytes := n / 8
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			b := src[i*typesize+j]
			for k := 0; k < 8; k++ {
				if b&(1<<k) != 0 {
					dst[(j*8+k)*rowBytes+i/8] |= 1 << (i % 8)
				}
			}
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
	return dst
}

func bitunshuffle(typesize int, src, dst []byte) {
	n := len(src) / typesize
	n -= n % 8
	rowBytes := n / 8
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			var b byte
			for k := 0; k < 8; k++ {
				if src[(j*8+k)*rowBytes+i/8]&(1<<(i%8)) != 0 {
					b |= 1 << k
				}
			}
			dst[i*typesize+j] = b
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}
