package bootcfg

import (
	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/memlayout"
)

// KernelPID is the owner id written for every page the loader itself
// claims before handing any memory to a user process.
const KernelPID = 1

// ErrDoubleOwned is raised when MarkOwned is called twice for the same
// physical page: every tracked page's owner byte must be written exactly
// once during boot.
var ErrDoubleOwned = &bootlog.Error{Module: "bootcfg", Message: "page marked owned twice"}

// ErrPageOutOfRange is raised when an address falls outside every region
// the tracker knows about.
var ErrPageOutOfRange = &bootlog.Error{Module: "bootcfg", Message: "page address out of tracked range"}

// PageTracker is a dense byte array, one entry per physical page, recording
// the owning process id. Index 0 corresponds to the highest page of main
// SRAM; indices beyond SRAM's page count cover the configured extra
// regions in order.
type PageTracker struct {
	owners     []byte
	sramTop    uint64
	sramPages  uint64
	regions    []Region
	regionBase []uint64 // index at which each region's pages begin
}

// newPageTracker allocates a tracker sized for cfg's SRAM plus every extra
// region. Every entry starts at owner 0 (unmarked); the top-of-RAM guard
// region stays that way for the whole boot, since nothing is ever
// allocated out of it.
func newPageTracker(cfg *Config) *PageTracker {
	sramPages := cfg.SRAMSize / memlayout.PageSize
	total := sramPages
	bases := make([]uint64, len(cfg.Regions))
	for i, r := range cfg.Regions {
		bases[i] = total
		total += r.Length / memlayout.PageSize
	}
	return &PageTracker{
		owners:     make([]byte, total),
		sramTop:    cfg.SRAMBase + cfg.SRAMSize,
		sramPages:  sramPages,
		regions:    cfg.Regions,
		regionBase: bases,
	}
}

// Len returns total_pages: sram_size/PAGE + Σ region.length/PAGE.
func (t *PageTracker) Len() int { return len(t.owners) }

// indexOf maps a physical address to its page index, measured from the top
// of RAM for main SRAM addresses and continuing into each extra region in
// configuration order.
func (t *PageTracker) indexOf(addr uint64) (int, *bootlog.Error) {
	if addr < t.sramTop && addr >= t.sramTop-t.sramPages*memlayout.PageSize {
		page := memlayout.PageOf(addr)
		idx := (t.sramTop - memlayout.PageSize - page) / memlayout.PageSize
		return int(idx), nil
	}
	for i, r := range t.regions {
		if addr >= r.Start && addr < r.Start+r.Length {
			off := (addr - r.Start) / memlayout.PageSize
			return int(t.regionBase[i] + off), nil
		}
	}
	return 0, ErrPageOutOfRange
}

// MarkOwned records addr's page as owned by pid. It halts with
// ErrDoubleOwned if the page already has a nonzero owner, enforcing the
// "owner byte written exactly once" invariant.
func (t *PageTracker) MarkOwned(addr uint64, pid byte) {
	idx, err := t.indexOf(addr)
	if err != nil {
		bootlog.Panic(err)
	}
	if t.owners[idx] != 0 {
		bootlog.Panic(ErrDoubleOwned)
	}
	t.owners[idx] = pid
}

// MarkOwnedRange marks every page in [addr, addr+size) as owned by pid.
func (t *PageTracker) MarkOwnedRange(addr, size uint64, pid byte) {
	page := memlayout.PageOf(addr)
	end := addr + size
	for page < end {
		t.MarkOwned(page, pid)
		page += memlayout.PageSize
	}
}

// Owner returns the owner byte recorded for addr's page, or 0 if unmarked.
func (t *PageTracker) Owner(addr uint64) byte {
	idx, err := t.indexOf(addr)
	if err != nil {
		bootlog.Panic(err)
	}
	return t.owners[idx]
}

// Bytes returns the raw owner table, e.g. for handoff to the kernel.
func (t *PageTracker) Bytes() []byte { return t.owners }
