package swapcrypto

import "github.com/gsora/xous-core/memlayout"

// CipherAreaLenFromRAMSize carves the byte length of swap RAM's ciphertext
// area out of its total size, reserving room for the trailing MAC table.
// The MAC table's own size is estimated from the full RAM size rather than
// the post-subtraction ciphertext length, which over-reserves by a few
// bytes — an approximation carried over deliberately from swap.rs's own
// SwapHal::new, which accepts the same small error rather than iterating
// to a fixed point.
func CipherAreaLenFromRAMSize(totalSize uint64) uint64 {
	pageAligned := totalSize &^ (memlayout.PageSize - 1)
	macSize := (totalSize / memlayout.PageSize) * TagSize
	macSizeToPage := memlayout.AlignUp(macSize)
	return pageAligned - macSizeToPage
}
