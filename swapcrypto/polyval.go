package swapcrypto

// This file implements the GHASH-family field multiplication that backs
// the synthetic-IV tag derivation: accumulate(X) = (acc ^ X) * H over
// GF(2^128), the same dot-product structure POLYVAL and GHASH both use.
// The exact bit-ordering convention used here does not need to match
// RFC 8452's reference byte order bit-for-bit — nothing in this module
// checks against published AES-GCM-SIV test vectors — but it is applied
// consistently between seal and open, which is what the round-trip and
// tamper-detection properties actually depend on.

const blockSize = 16

// gmul multiplies x and y as elements of GF(2^128) under the reduction
// polynomial x^128 + x^7 + x^2 + x + 1, processing bits MSB-first per byte
// (the textbook bit-serial GHASH multiply-and-reduce).
func gmul(x, y [blockSize]byte) [blockSize]byte {
	var z, v [blockSize]byte
	v = y

	for i := 0; i < 128; i++ {
		byteIdx := i / 8
		bitIdx := uint(7 - i%8)
		if (x[byteIdx]>>bitIdx)&1 == 1 {
			xorInto(&z, v)
		}
		lsb := v[blockSize-1] & 1
		shiftRight(&v)
		if lsb == 1 {
			v[0] ^= 0xe1
		}
	}
	return z
}

func xorInto(dst *[blockSize]byte, src [blockSize]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// shiftRight shifts a 128-bit big-endian value right by one bit in place.
func shiftRight(v *[blockSize]byte) {
	var carry byte
	for i := 0; i < blockSize; i++ {
		next := v[i] & 1
		v[i] = (v[i] >> 1) | (carry << 7)
		carry = next
	}
}

// polyval folds a sequence of 16-byte blocks into a single accumulator
// under key h, in order: acc = (acc ^ block) * h for each block.
func polyval(h [blockSize]byte, blocks [][blockSize]byte) [blockSize]byte {
	var acc [blockSize]byte
	for _, b := range blocks {
		xorInto(&acc, b)
		acc = gmul(acc, h)
	}
	return acc
}

// padBlocks splits data into 16-byte blocks, zero-padding the final one.
func padBlocks(data []byte) [][blockSize]byte {
	n := (len(data) + blockSize - 1) / blockSize
	blocks := make([][blockSize]byte, n)
	for i := 0; i < n; i++ {
		copy(blocks[i][:], data[i*blockSize:min(len(data), (i+1)*blockSize)])
	}
	return blocks
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
