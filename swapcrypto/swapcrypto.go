// Package swapcrypto implements the swap subsystem's AES-256-GCM-SIV
// primitive: per-page authenticated encryption keyed by a nonce
// algebraically tied to the owning process id and the physical/virtual
// page addresses involved, plus the source/destination key split and
// MAC-table bookkeeping for swap RAM.
//
// Grounded on original_source/loader/src/platform/precursor/swap.rs's
// SwapHal type; Go's standard library has no AES-GCM-SIV (only AES-GCM),
// and no corpus example vendors one either, so the AEAD construction in
// siv.go and polyval.go is hand-rolled on top of crypto/aes.
package swapcrypto

import (
	"encoding/binary"

	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
)

// ErrSrcTagMismatch is the fatal error raised when a FLASH-side swap page
// fails authentication: the boot image itself is corrupt or tampered.
var ErrSrcTagMismatch = &bootlog.Error{Module: "swapcrypto", Message: "source swap page failed authentication"}

// ErrDstTagMismatch is returned (not panicked) when a RAM-side swap page
// fails authentication, since that can only happen after hand-off, when
// it is the kernel pager's concern rather than the loader's.
var ErrDstTagMismatch = &bootlog.Error{Module: "swapcrypto", Message: "destination swap page failed authentication"}

// Context holds everything needed to transcode one process's worth of
// swap pages: the FLASH-side source key and partial nonce/AAD from the
// swap source header, the RAM-side destination key freshly drawn from the
// TRNG, and the FLASH/RAM byte arenas the ciphertext lives in.
type Context struct {
	srcKey [32]byte
	dstKey [32]byte

	partialNonce [8]byte
	aad          []byte

	// flashSwap covers the whole FLASH swap image, page 0 (header)
	// included; ciphertext pages begin at flashSwap.Base()+PageSize.
	flashSwap *phys.Region

	// srcMacOffset is the byte offset of the MAC table, measured from the
	// start of the ciphertext area (i.e. one page past flashSwap.Base()),
	// as carried by the swap source header's mac_offset field.
	srcMacOffset uint64

	// ramSwap covers [ciphertext_data | mac_table | unused) in swap RAM.
	ramSwap       *phys.Region
	cipherAreaLen uint64

	decryptBuf       [memlayout.PageSize]byte
	decryptBufOffset uint64
	decryptBufValid  bool
}

// NewContext builds a swap crypto context. srcMacOffset is the FLASH swap
// header's mac_offset field. cipherAreaLen is the byte length of the
// ciphertext_data region at the start of ramSwap; the MAC table begins
// immediately after it.
func NewContext(srcKey, dstKey [32]byte, partialNonce [8]byte, aad []byte, flashSwap, ramSwap *phys.Region, srcMacOffset, cipherAreaLen uint64) *Context {
	return &Context{
		srcKey:        srcKey,
		dstKey:        dstKey,
		partialNonce:  partialNonce,
		aad:           aad,
		flashSwap:     flashSwap,
		srcMacOffset:  srcMacOffset,
		ramSwap:       ramSwap,
		cipherAreaLen: cipherAreaLen,
	}
}

// CipherAreaLen returns the byte length of swap RAM's ciphertext area.
func (c *Context) CipherAreaLen() uint64 { return c.cipherAreaLen }

// MacTableLen returns the MAC table's length in bytes: one TagSize entry
// per page of the ciphertext area.
func (c *Context) MacTableLen() uint64 {
	pages := c.cipherAreaLen / memlayout.PageSize
	return pages * TagSize
}

func putBE24(dst []byte, v uint32) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

// destNonce builds the 12-byte nonce for a destination-side (RAM swap)
// operation: swap-count fixed at 0 during boot transcoding, then reserved
// byte, pid, high 24 bits of the physical swap offset, high 24 bits of the
// virtual page address.
func destNonce(pid uint32, physOffset, virtAddr uint64) [12]byte {
	var n [12]byte
	n[4] = 0
	n[5] = byte(pid)
	putBE24(n[6:9], uint32(physOffset>>8))
	putBE24(n[9:12], uint32(virtAddr>>8))
	return n
}

// srcNonce builds the 12-byte nonce for a source-side (FLASH swap) page
// read: the page offset in big-endian followed by the header's partial
// nonce.
func srcNonce(pageOffset uint64, partial [8]byte) [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint32(n[0:4], uint32(pageOffset))
	copy(n[4:12], partial[:])
	return n
}

// macIndex returns the MAC table byte offset for the ciphertext page at
// byte offset off within the ciphertext area.
func macIndex(off uint64) uint64 {
	return (off / memlayout.PageSize) * TagSize
}

// EncryptSourcePage seals one page of plaintext under the source-side key
// and nonce shape, for use by whatever builds a FLASH swap image (outside
// the loader's own scope, which only ever decrypts source pages) and by
// tests that need to synthesize one.
func EncryptSourcePage(key [32]byte, partialNonce [8]byte, aad []byte, offset uint64, plaintext []byte) (ciphertext []byte, tag [TagSize]byte) {
	nonce := srcNonce(offset, partialNonce)
	return seal(key, nonce, aad, plaintext)
}

// DecryptSrcPageAt decrypts the FLASH swap ciphertext page at byte offset
// off (relative to the start of the ciphertext area, i.e. excluding the
// header page) and caches it, re-decrypting lazily only when off changes.
// It halts with ErrSrcTagMismatch on authentication failure — a corrupted
// or tampered boot image is unrecoverable.
func (c *Context) DecryptSrcPageAt(off uint64) []byte {
	if c.decryptBufValid && c.decryptBufOffset == off {
		return c.decryptBuf[:]
	}

	pageAddr := c.flashSwap.Base() + memlayout.PageSize + off
	ciphertext := c.flashSwap.Slice(pageAddr, memlayout.PageSize)

	tagAddr := c.flashSwap.Base() + memlayout.PageSize + c.srcMacOffset + macIndex(off)
	tagBytes := c.flashSwap.Slice(tagAddr, TagSize)
	var tag [TagSize]byte
	copy(tag[:], tagBytes)

	nonce := srcNonce(off, c.partialNonce)
	plaintext, ok := open(c.srcKey, nonce, c.aad, ciphertext, tag)
	if !ok {
		bootlog.Panic(ErrSrcTagMismatch)
	}

	copy(c.decryptBuf[:], plaintext)
	c.decryptBufOffset = off
	c.decryptBufValid = true
	return c.decryptBuf[:]
}

// EncryptSwapTo encrypts buf (one page) under the destination key and
// installs it at byte offset destOffset in swap RAM's ciphertext area,
// recording its tag in the matching MAC table slot.
func (c *Context) EncryptSwapTo(buf []byte, destOffset uint64, srcVaddr uint64, pid uint32) {
	nonce := destNonce(pid, destOffset, srcVaddr)
	ciphertext, tag := seal(c.dstKey, nonce, nil, buf)

	dstAddr := c.ramSwap.Base() + destOffset
	c.ramSwap.CopyIn(dstAddr, ciphertext)

	macAddr := c.ramSwap.Base() + c.cipherAreaLen + macIndex(destOffset)
	c.ramSwap.CopyIn(macAddr, tag[:])
}

// DecryptSwapFrom decrypts the swap RAM ciphertext page at srcOffset,
// authenticated against its stored MAC tag and the (dstVaddr, pid) that
// were bound into the nonce when it was written. A tag mismatch returns
// ErrDstTagMismatch rather than halting: the loader itself never re-reads
// its own writes, so this path only matters to callers exercising it
// directly (e.g. the runtime pager, or tests).
func (c *Context) DecryptSwapFrom(srcOffset uint64, dstVaddr uint64, pid uint32) ([]byte, *bootlog.Error) {
	ciphertextAddr := c.ramSwap.Base() + srcOffset
	ciphertext := c.ramSwap.Slice(ciphertextAddr, memlayout.PageSize)

	macAddr := c.ramSwap.Base() + c.cipherAreaLen + macIndex(srcOffset)
	tagBytes := c.ramSwap.Slice(macAddr, TagSize)
	var tag [TagSize]byte
	copy(tag[:], tagBytes)

	nonce := destNonce(pid, srcOffset, dstVaddr)
	plaintext, ok := open(c.dstKey, nonce, nil, ciphertext, tag)
	if !ok {
		return nil, ErrDstTagMismatch
	}

	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	return out, nil
}
