package swapcrypto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseSourceHeaderRoundTrip(t *testing.T) {
	page := make([]byte, 4096)
	binary.LittleEndian.PutUint32(page[0:4], 0x2000)
	aad := []byte("boot-swap-aad")
	binary.LittleEndian.PutUint32(page[4:8], uint32(len(aad)))
	copy(page[8:], aad)
	partial := [8]byte{9, 8, 7, 6, 5, 4, 3, 2}
	copy(page[8+sourceHeaderAADCap:], partial[:])

	h := ParseSourceHeader(page)
	if h.MacOffset != 0x2000 {
		t.Fatalf("MacOffset = %#x, want 0x2000", h.MacOffset)
	}
	if !bytes.Equal(h.AAD, aad) {
		t.Fatalf("AAD = %q, want %q", h.AAD, aad)
	}
	if h.PartialNonce != partial {
		t.Fatalf("PartialNonce = %v, want %v", h.PartialNonce, partial)
	}
}

func TestParseSourceHeaderClampsOversizedAADLen(t *testing.T) {
	page := make([]byte, 4096)
	binary.LittleEndian.PutUint32(page[4:8], 0xFFFFFFFF)

	h := ParseSourceHeader(page)
	if len(h.AAD) != sourceHeaderAADCap {
		t.Fatalf("len(AAD) = %d, want %d", len(h.AAD), sourceHeaderAADCap)
	}
}
