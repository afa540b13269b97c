// Package bootcfg holds the loader's boot configuration record and the
// top-of-RAM region allocator built on top of it. The configuration is
// threaded explicitly by pointer through every phase of the loader rather
// than kept in a package-level variable, the same way gopheros's pmm.Init
// takes its kernel bounds as arguments instead of reaching for globals.
package bootcfg

import (
	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
)

// Region describes one additional named memory region beyond main SRAM
// (e.g. a peripheral-adjacent RAM block) that contributes pages to the
// page tracker.
type Region struct {
	Name   string
	Start  uint64
	Length uint64
}

// Swap holds the FLASH-side swap image location and key. It is nil on a
// Config where the swap feature is not configured — the runtime
// equivalent of an absent compile-time feature flag.
type Swap struct {
	FlashOffset uint64
	RAMOffset   uint64
	RAMSize     uint64
	Key         [32]byte // source-side key, supplied by the image builder
}

// Config is the boot configuration record threaded through the loader.
type Config struct {
	SRAMBase uint64
	SRAMSize uint64
	Regions  []Region

	// BaseAddr is the FLASH address that section load_offsets are
	// resolved relative to.
	BaseAddr uint64

	// InitSize is the number of bytes already consumed, measured
	// downward from SRAMBase+SRAMSize. It starts pre-loaded with the
	// boot stack / guard page reservation.
	InitSize uint64

	// ExtraPages counts pages allocated for the process currently being
	// copied; it resets at the start of each process and is surfaced
	// for diagnostics only.
	ExtraPages uint64

	Processes []*InitialProcess
	Swap      *Swap

	// SwapFreePage is the next unused page index inside swap RAM.
	SwapFreePage uint32

	// NoCopy is carried on the record but no loader phase reads it:
	// whether a section is copied into RAM or left in FLASH depends only
	// on its tag and flags.
	NoCopy bool

	// RAM is the byte arena backing every address this Config hands out.
	RAM *phys.Region

	tracker *PageTracker
}

// ErrOutOfMemory is raised when an allocation would cross below SRAMBase.
var ErrOutOfMemory = &bootlog.Error{Module: "bootcfg", Message: "out of memory in top-of-RAM allocator"}

// NewConfig builds a Config over a freshly zeroed RAM arena spanning
// [sramBase, sramBase+sramSize), with the top guard-bytes reservation
// (boot stack + clean-suspend marker) already accounted for in InitSize.
func NewConfig(sramBase, sramSize uint64, regions []Region) *Config {
	cfg := &Config{
		SRAMBase: sramBase,
		SRAMSize: sramSize,
		Regions:  regions,
		RAM:      phys.NewRegion(sramBase, sramSize),
		InitSize: memlayout.GuardBytes,
	}
	cfg.tracker = newPageTracker(cfg)
	return cfg
}

// Tracker returns the page ownership tracker associated with this Config.
func (c *Config) Tracker() *PageTracker { return c.tracker }

// Top returns the current highest unallocated address.
func (c *Config) Top() uint64 {
	return c.SRAMBase + c.SRAMSize - c.InitSize
}

// AlignUpToPage pads InitSize so that Top() becomes page-aligned, without
// handing out any of the padding to the caller.
func (c *Config) AlignUpToPage() {
	top := c.Top()
	aligned := memlayout.PageOf(top)
	c.InitSize += top - aligned
}

// Reserve advances InitSize by n bytes and returns the address of the
// newly reserved, previously-unallocated block: [addr, addr+n). Successive
// Reserve calls return pairwise-disjoint ranges, all below the previous
// call's range, all contained in [SRAMBase, SRAMBase+SRAMSize).
func (c *Config) Reserve(n uint64) uint64 {
	top := c.Top()
	if top < c.SRAMBase || top-c.SRAMBase < n {
		bootlog.Panic(ErrOutOfMemory)
	}
	c.InitSize += n
	return top - n
}

// AllocPage reserves and zeroes one page-aligned page, returning its
// address. It always aligns Top() to a page boundary first.
func (c *Config) AllocPage() uint64 {
	c.AlignUpToPage()
	addr := c.Reserve(memlayout.PageSize)
	c.RAM.Zero(addr, memlayout.PageSize)
	c.ExtraPages++
	return addr
}

// MarkLoaderPagesOwned marks every page reserved below the top-of-RAM
// guard region as owned by the kernel (pid 1). The process table, swap
// roots, merged argument buffer, and every process's and the kernel's
// copied sections all land in this range over the course of a boot; none
// of them is handed to its eventual resident process here; that transfer
// is a later stage's job. Call it once, after the last Reserve/AllocPage
// of a boot.
func (c *Config) MarkLoaderPagesOwned() {
	guardTop := c.SRAMBase + c.SRAMSize - memlayout.GuardBytes
	top := c.Top()
	if top >= guardTop {
		return
	}
	c.tracker.MarkOwnedRange(top, guardTop-top, KernelPID)
}
