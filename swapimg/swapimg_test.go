package swapimg

import (
	"bytes"
	"testing"

	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/bootcfg"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
	"github.com/gsora/xous-core/swapcrypto"
)

func testKey(seed byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

// sealSourcePage writes a sealed source swap page and its tag into flash
// exactly where DecryptSrcPageAt expects to find them: ciphertext one page
// past the header, tag at one page past the header plus macOffset plus the
// page's MAC table slot (macOffset is relative to the ciphertext area, per
// the swap source header's mac_offset field).
func sealSourcePage(t *testing.T, flash *phys.Region, key [32]byte, partial [8]byte, aad []byte, plaintext []byte, macOffset uint64) {
	t.Helper()
	ciphertext, tag := swapcrypto.EncryptSourcePage(key, partial, aad, 0, plaintext)
	flash.CopyIn(flash.Base()+memlayout.PageSize, ciphertext)
	flash.CopyIn(flash.Base()+memlayout.PageSize+macOffset, tag[:])
}

// TestTranscodeAcrossPageBoundary mirrors the swap-transcode-across-a-page-
// boundary scenario: two sections straddling a page boundary must produce
// two swap pages with the expected byte layout in each.
func TestTranscodeAcrossPageBoundary(t *testing.T) {
	srcKey := testKey(3)
	dstKey := testKey(4)
	partial := [8]byte{1, 1, 1, 1, 1, 1, 1, 1}

	secA := bytes.Repeat([]byte{0xAA}, 0x20)
	secB := bytes.Repeat([]byte{0xBB}, 0x20)
	plain := make([]byte, memlayout.PageSize)
	copy(plain[0x00:], secA)
	copy(plain[0x20:], secB)

	flash := phys.NewRegion(0x60000000, memlayout.PageSize*4)
	macOffset := memlayout.PageSize * 2

	ram := phys.NewRegion(0x50000000, memlayout.PageSize*4)
	ctx := swapcrypto.NewContext(srcKey, dstKey, partial, nil, flash, ram, uint64(macOffset), memlayout.PageSize*2)

	sealSourcePage(t, flash, srcKey, partial, nil, plain, uint64(macOffset))

	cfg := bootcfg.NewConfig(0x40000000, 1<<20, nil)

	elf := argstream.MiniElf{
		LoadOffset: 0,
		Sections: []argstream.Section{
			{Virt: 0x10FF0, Len: 0x20},
			{Virt: 0x11010, Len: 0x20},
		},
	}

	res := Transcode(cfg, ctx, elf, 7)
	if len(res.Mappings) != 2 {
		t.Fatalf("len(Mappings) = %d, want 2", len(res.Mappings))
	}

	firstPage, err := ctx.DecryptSwapFrom(res.Mappings[0].SwapOffset, res.Mappings[0].Virt, 7)
	if err != nil {
		t.Fatalf("decrypt first page: %v", err)
	}
	for i := 0; i < 0xFF0; i++ {
		if firstPage[i] != 0 {
			t.Fatalf("firstPage[%#x] = %#x, want 0", i, firstPage[i])
		}
	}
	for i := 0xFF0; i < 0x1000; i++ {
		if firstPage[i] != 0xAA {
			t.Fatalf("firstPage[%#x] = %#x, want 0xAA", i, firstPage[i])
		}
	}

	secondPage, err := ctx.DecryptSwapFrom(res.Mappings[1].SwapOffset, res.Mappings[1].Virt, 7)
	if err != nil {
		t.Fatalf("decrypt second page: %v", err)
	}
	for i := 0; i < 0x10; i++ {
		if secondPage[i] != 0xAA {
			t.Fatalf("secondPage[%#x] = %#x, want 0xAA (section A tail)", i, secondPage[i])
		}
	}
	for i := 0x10; i < 0x30; i++ {
		if secondPage[i] != 0xBB {
			t.Fatalf("secondPage[%#x] = %#x, want 0xBB (section B)", i, secondPage[i])
		}
	}
	for i := 0x30; i < len(secondPage); i++ {
		if secondPage[i] != 0 {
			t.Fatalf("secondPage[%#x] = %#x, want 0", i, secondPage[i])
		}
	}
}

// TestTranscodeFinalCommitDoesNotLeakAcquisition checks that the final
// page of a process is committed, not flushed: exactly one swap page is
// acquired for one page's worth of data, with no spare page left rotated
// in behind it.
func TestTranscodeFinalCommitDoesNotLeakAcquisition(t *testing.T) {
	flash := phys.NewRegion(0x60000000, memlayout.PageSize*4)
	ram := phys.NewRegion(0x50000000, memlayout.PageSize*4)
	srcKey := testKey(5)
	dstKey := testKey(6)
	partial := [8]byte{2, 2, 2, 2, 2, 2, 2, 2}
	macOffset := memlayout.PageSize * 2

	plain := make([]byte, memlayout.PageSize)
	copy(plain, bytes.Repeat([]byte{0xCC}, 0x10))
	sealSourcePage(t, flash, srcKey, partial, nil, plain, uint64(macOffset))

	ctx := swapcrypto.NewContext(srcKey, dstKey, partial, nil, flash, ram, uint64(macOffset), memlayout.PageSize*2)
	cfg := bootcfg.NewConfig(0x40000000, 1<<20, nil)

	elf := argstream.MiniElf{
		Sections: []argstream.Section{
			{Virt: 0x10000, Len: 0x10},
		},
	}

	before := cfg.SwapFreePage
	res := Transcode(cfg, ctx, elf, 1)
	if len(res.Mappings) != 1 {
		t.Fatalf("len(Mappings) = %d, want 1", len(res.Mappings))
	}
	if cfg.SwapFreePage != before+1 {
		t.Fatalf("SwapFreePage = %d, want %d (one committed page, no leaked acquisition)", cfg.SwapFreePage, before+1)
	}
}

// TestTranscodeEmptyProcessReleasesAcquiredPage checks the other half of
// the same accounting: a process with nothing to transcode must give back
// its initially acquired page rather than leave the free-page counter
// advanced for no reason.
func TestTranscodeEmptyProcessReleasesAcquiredPage(t *testing.T) {
	flash := phys.NewRegion(0x60000000, memlayout.PageSize*4)
	ram := phys.NewRegion(0x50000000, memlayout.PageSize*4)
	srcKey := testKey(7)
	dstKey := testKey(8)
	partial := [8]byte{3, 3, 3, 3, 3, 3, 3, 3}
	macOffset := memlayout.PageSize * 2

	ctx := swapcrypto.NewContext(srcKey, dstKey, partial, nil, flash, ram, uint64(macOffset), memlayout.PageSize*2)
	cfg := bootcfg.NewConfig(0x40000000, 1<<20, nil)

	elf := argstream.MiniElf{Sections: nil}

	before := cfg.SwapFreePage
	res := Transcode(cfg, ctx, elf, 1)
	if len(res.Mappings) != 0 {
		t.Fatalf("len(Mappings) = %d, want 0", len(res.Mappings))
	}
	if cfg.SwapFreePage != before {
		t.Fatalf("SwapFreePage = %d, want %d (acquired page released unused)", cfg.SwapFreePage, before)
	}
}
