// Package swapimg implements the swap image transcoder: for each
// swap-resident (IniS) process, it decrypts source pages out of
// the FLASH swap image, repacks them in virtual-address order into
// working pages, and re-encrypts each finished page into swap RAM under
// the destination key, recording the resulting swap-offset-to-virtual-page
// mapping.
package swapimg

import (
	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/bootcfg"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/swapcrypto"
)

// Mapping records that the swap-RAM page at SwapOffset holds the
// ciphertext for virtual page Virt of some process — the per-process
// swap page table entry the kernel needs at hand-off.
type Mapping struct {
	SwapOffset uint64
	Virt       uint64
}

// Result carries every swap page written for one process.
type Result struct {
	Mappings []Mapping
}

func minU64(vals ...uint64) uint64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Transcode runs the per-process working-page state machine for one IniS
// tag, re-encrypting its source pages into swap RAM under the
// destination key.
func Transcode(cfg *bootcfg.Config, crypto *swapcrypto.Context, elf argstream.MiniElf, pid uint32) *Result {
	res := &Result{}

	startFloor := cfg.SwapFreePage

	var workingBuf [memlayout.PageSize]byte
	workingOffset := cfg.AcquireSwapPage()
	workingDirty := false
	var workingPageVirt uint64
	havePageVirt := false
	firstSection := true

	// commit encrypts and installs the current working page without
	// acquiring a replacement — used for the final page of the process,
	// after which no further page is needed.
	commit := func() {
		crypto.EncryptSwapTo(workingBuf[:], workingOffset, workingPageVirt, pid)
		res.Mappings = append(res.Mappings, Mapping{
			SwapOffset: workingOffset,
			Virt:       workingPageVirt,
		})
	}

	// flush commits the current working page and rotates in a freshly
	// acquired one — used when a section starts on a new destination page
	// and whenever a page boundary is reached. If no more data follows,
	// the rotated-in page stays clean and is released at the end.
	flush := func() {
		commit()
		for i := range workingBuf {
			workingBuf[i] = 0
		}
		workingOffset = cfg.AcquireSwapPage()
		workingDirty = false
		havePageVirt = false
	}

	srcImg := uint64(elf.LoadOffset)

	for _, section := range elf.Sections {
		dstVaddr := uint64(section.Virt)
		remaining := uint64(section.Len)

		if !firstSection && havePageVirt && memlayout.PageOf(dstVaddr) != workingPageVirt {
			flush()
		}
		firstSection = false

		for remaining > 0 {
			if !havePageVirt {
				workingPageVirt = memlayout.PageOf(dstVaddr)
				havePageVirt = true
			}

			decBuf := crypto.DecryptSrcPageAt(memlayout.PageOf(srcImg))

			decryptAvail := memlayout.PageSize - (srcImg % memlayout.PageSize)
			dstAvail := memlayout.PageSize - (dstVaddr % memlayout.PageSize)
			copyable := minU64(decryptAvail, dstAvail, remaining)

			if !section.Flags.NoCopy() {
				dstOff := dstVaddr % memlayout.PageSize
				srcOff := srcImg % memlayout.PageSize
				copy(workingBuf[dstOff:dstOff+copyable], decBuf[srcOff:srcOff+copyable])
			}
			workingDirty = true

			remaining -= copyable
			dstVaddr += copyable
			srcImg += copyable

			if dstVaddr%memlayout.PageSize == 0 {
				flush()
			}
		}
	}

	if workingDirty {
		commit()
	} else {
		cfg.ReleaseSwapPage(startFloor)
	}

	return res
}
