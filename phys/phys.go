// Package phys implements the "physical-address arena with typed views"
// abstraction called for in the loader's design notes: a single owned byte
// arena representing a span of physical memory, with bounds-checked,
// address-indexed sub-slices handed out to callers instead of raw pointers.
// No address computed elsewhere is ever allowed to leak into a slice
// expression directly; every access goes through a Region method so a
// wrong/overlapping computation panics here instead of corrupting memory.
package phys

import "fmt"

// Region owns a contiguous byte arena and answers sub-slice requests by
// physical address.
type Region struct {
	base uint64
	mem  []byte
}

// NewRegion allocates an arena of size bytes addressed starting at base.
func NewRegion(base uint64, size uint64) *Region {
	return &Region{base: base, mem: make([]byte, size)}
}

// Base returns the lowest address covered by this region.
func (r *Region) Base() uint64 { return r.base }

// Size returns the number of bytes covered by this region.
func (r *Region) Size() uint64 { return uint64(len(r.mem)) }

// Top returns the address one past the last byte covered by this region.
func (r *Region) Top() uint64 { return r.base + r.Size() }

// Contains reports whether [addr, addr+n) lies entirely within the region.
func (r *Region) Contains(addr, n uint64) bool {
	if addr < r.base {
		return false
	}
	off := addr - r.base
	return off <= r.Size() && n <= r.Size()-off
}

// Slice returns the n-byte window starting at physical address addr. It
// panics if the window falls outside the region, which is always a loader
// bug (an out-of-RAM condition must be caught by the allocator before a
// Slice call is ever issued).
func (r *Region) Slice(addr, n uint64) []byte {
	if !r.Contains(addr, n) {
		panic(fmt.Sprintf("phys: [%#x, %#x) outside region [%#x, %#x)", addr, addr+n, r.base, r.Top()))
	}
	off := addr - r.base
	return r.mem[off : off+n]
}

// Zero clears n bytes starting at addr.
func (r *Region) Zero(addr, n uint64) {
	s := r.Slice(addr, n)
	for i := range s {
		s[i] = 0
	}
}

// CopyIn copies src into the region at addr.
func (r *Region) CopyIn(addr uint64, src []byte) {
	dst := r.Slice(addr, uint64(len(src)))
	copy(dst, src)
}
