package swapcrypto

import "encoding/binary"

// sourceHeaderAADCap bounds the associated-data buffer carried in the
// swap source header's fixed-size page. The image builder never needs
// more than this for a boot-time AAD (process/image identification), and
// capping it keeps the header a single, page-resident struct.
const sourceHeaderAADCap = 64

// SourceHeader is the first page of a FLASH swap image: the MAC table's
// byte offset (measured from the start of the ciphertext area), the
// associated data bound into every page's AEAD call, and the partial
// nonce mixed into every source-side nonce. The field layout here is this
// port's own choice — the image-builder side that writes this page is
// outside this module's scope, so there is no external layout to match.
type SourceHeader struct {
	MacOffset    uint64
	AAD          []byte
	PartialNonce [8]byte
}

// ParseSourceHeader decodes page (the FLASH swap image's first page) into
// a SourceHeader: a 4-byte little-endian mac_offset, a 4-byte AAD length,
// up to sourceHeaderAADCap bytes of AAD, then the 8-byte partial nonce.
func ParseSourceHeader(page []byte) SourceHeader {
	macOffset := binary.LittleEndian.Uint32(page[0:4])
	aadLen := binary.LittleEndian.Uint32(page[4:8])
	if aadLen > sourceHeaderAADCap {
		aadLen = sourceHeaderAADCap
	}

	aad := make([]byte, aadLen)
	copy(aad, page[8:8+aadLen])

	var partial [8]byte
	copy(partial[:], page[8+sourceHeaderAADCap:8+sourceHeaderAADCap+8])

	return SourceHeader{MacOffset: uint64(macOffset), AAD: aad, PartialNonce: partial}
}
