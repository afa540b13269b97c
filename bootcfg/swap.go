package bootcfg

import "github.com/gsora/xous-core/memlayout"

// AcquireSwapPage returns the byte offset of the next unused ciphertext
// slot in swap RAM and advances the free-page counter. Offsets returned
// across a whole boot are monotonically increasing.
func (c *Config) AcquireSwapPage() uint64 {
	off := uint64(c.SwapFreePage) * memlayout.PageSize
	c.SwapFreePage++
	return off
}

// ReleaseSwapPage gives back a swap page acquired but left unused (the
// end-of-process flush was skipped because nothing was ever written to
// it). floor is the free-page counter's value when the current process
// started transcoding; the decrement is guarded so the counter never
// drops below that floor, since a page already committed earlier in the
// same process must never be recycled out from under it.
func (c *Config) ReleaseSwapPage(floor uint32) {
	if c.SwapFreePage > floor {
		c.SwapFreePage--
	}
}
