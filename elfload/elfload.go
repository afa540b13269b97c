// Package elfload implements the Mini-ELF loader: walking the section
// table of an IniE/IniF process tag, or the two fixed text/data+bss
// sections of the kernel's XKrn tag, copying or zero-filling pages in RAM
// while enforcing strictly non-decreasing section addresses.
package elfload

import (
	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/bootcfg"
	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
)

// ErrNonMonotonicSections is raised when a section's virtual address is
// lower than the end (virt+len) of the previous section within the same
// process.
var ErrNonMonotonicSections = &bootlog.Error{Module: "elfload", Message: "section addresses are not non-decreasing"}

// Mapping records one virtual-to-physical association produced while
// copying a process: a copied page in RAM, or an execute-in-place section
// left at its FLASH address. The loader does not encode page table entries
// itself (that format is a kernel/MMU concern); it hands the kernel this
// list alongside the process descriptor.
type Mapping struct {
	Virt  uint64
	Phys  uint64
	Write bool
	Exec  bool
}

// Result carries the mappings CopyProcess produced for one process.
type Result struct {
	Mappings []Mapping
}

// CopyProcess copies or maps one IniE/IniF process's sections into RAM.
// flash is the FLASH image byte arena that load_offset is resolved
// against. isIniE selects resident-copy semantics (every section copied)
// versus execute-in-place semantics (only W-flagged sections copied; the
// rest stay mapped straight out of FLASH). The pages it allocates are not
// marked in the page tracker here; Config.MarkLoaderPagesOwned later marks
// them kernel-owned, and handing a process its own pages is a later
// stage's job.
func CopyProcess(cfg *bootcfg.Config, flash *phys.Region, elf argstream.MiniElf, isIniE bool) *Result {
	res := &Result{}

	srcCursor := cfg.BaseAddr + uint64(elf.LoadOffset)
	var lastVirt uint64
	var havePrev bool

	var curPagePhys uint64
	var curPageVirt uint64
	var haveCurPage bool

	for _, section := range elf.Sections {
		if havePrev && uint64(section.Virt) < lastVirt {
			bootlog.Panic(ErrNonMonotonicSections)
		}
		havePrev = true

		copyToRAM := section.Flags.Writable() || isIniE

		if !copyToRAM {
			// Execute-in-place: stays referenced in FLASH, consumes its
			// bytes from the image, but claims no RAM page.
			res.Mappings = append(res.Mappings, Mapping{
				Virt: uint64(section.Virt),
				Phys: srcCursor,
				Exec: section.Flags.Exec(),
			})
			srcCursor += uint64(section.Len)
			lastVirt = uint64(section.Virt) + uint64(section.Len)
			haveCurPage = false
			continue
		}

		dstVirt := uint64(section.Virt)
		remaining := uint64(section.Len)
		noCopy := section.Flags.NoCopy()

		for remaining > 0 {
			pageVirt := memlayout.PageOf(dstVirt)
			if !haveCurPage || pageVirt != curPageVirt {
				curPagePhys = cfg.AllocPage()
				curPageVirt = pageVirt
				haveCurPage = true
				res.Mappings = append(res.Mappings, Mapping{
					Virt:  pageVirt,
					Phys:  curPagePhys,
					Write: section.Flags.Writable(),
					Exec:  section.Flags.Exec(),
				})
			}

			off := dstVirt % memlayout.PageSize
			n := memlayout.PageSize - off
			if n > remaining {
				n = remaining
			}

			if !noCopy {
				cfg.RAM.CopyIn(curPagePhys+off, flash.Slice(srcCursor, n))
				srcCursor += n
			}

			dstVirt += n
			remaining -= n

			if dstVirt%memlayout.PageSize == 0 {
				haveCurPage = false
			}
		}

		lastVirt = uint64(section.Virt) + uint64(section.Len)
	}

	return res
}

// CopyKernel implements the XKrn arm: two fixed sections, text then
// data+bss, each rounded up to page granularity and always copied to RAM
// regardless of any flags (the kernel image carries none). It returns the
// RAM base address of each section.
func CopyKernel(cfg *bootcfg.Config, flash *phys.Region, prog argstream.ProgramDescription) (textBase, dataBase uint64) {
	src := cfg.BaseAddr + uint64(prog.LoadOffset)

	textBase = copyRoundedSection(cfg, flash, src, uint64(prog.TextSize))
	src += uint64(prog.TextSize)

	dataBssLen := uint64(prog.DataSize) + uint64(prog.BssSize)
	dataBase = copyRoundedSection(cfg, flash, src, dataBssLen, uint64(prog.DataSize))

	return textBase, dataBase
}

// copyRoundedSection allocates enough fresh pages to hold totalLen bytes
// and copies the first copyLen bytes (default totalLen) in from flash
// starting at src; any remainder stays zero, giving bss-style semantics
// when copyLen < totalLen.
func copyRoundedSection(cfg *bootcfg.Config, flash *phys.Region, src uint64, totalLen uint64, copyLen ...uint64) uint64 {
	toCopy := totalLen
	if len(copyLen) == 1 {
		toCopy = copyLen[0]
	}

	pages := memlayout.AlignUp(totalLen) / memlayout.PageSize
	var base uint64
	var remaining = toCopy
	srcCursor := src
	for i := uint64(0); i < pages; i++ {
		page := cfg.AllocPage()
		if i == 0 {
			base = page
		}

		n := memlayout.PageSize
		if n > remaining {
			n = remaining
		}
		if n > 0 {
			cfg.RAM.CopyIn(page, flash.Slice(srcCursor, n))
			srcCursor += n
			remaining -= n
		}
	}
	return base
}
