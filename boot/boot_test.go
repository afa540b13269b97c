package boot

import (
	"encoding/binary"
	"testing"

	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
	"github.com/gsora/xous-core/swapcrypto"
)

func buildRecord(name [4]byte, data []byte) []byte {
	rec := append([]byte{}, name[:]...)
	sizeWords := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeWords, uint16(len(data)/4))
	rec = append(rec, sizeWords...)
	rec = append(rec, 0, 0)
	rec = append(rec, data...)
	return rec
}

func buildMiniElfData(loadOffset uint32, sections []argstream.Section) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, loadOffset)
	for _, s := range sections {
		entry := make([]byte, 8)
		binary.LittleEndian.PutUint32(entry[0:4], s.Virt)
		packed := s.Len&0x00FFFFFF | uint32(s.Flags)<<24
		binary.LittleEndian.PutUint32(entry[4:8], packed)
		data = append(data, entry...)
	}
	return data
}

func buildProgramDescriptionData(loadOffset, textSize, dataSize, bssSize uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], loadOffset)
	binary.LittleEndian.PutUint32(data[4:8], textSize)
	binary.LittleEndian.PutUint32(data[8:12], dataSize)
	binary.LittleEndian.PutUint32(data[12:16], bssSize)
	return data
}

func buildArgStream(records ...[]byte) []byte {
	buf := append([]byte{}, argstream.NameXArg[:]...)
	sizeWords := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeWords, 3)
	buf = append(buf, sizeWords...)
	buf = append(buf, 0, 0)
	buf = append(buf, make([]byte, 12)...)
	for _, r := range records {
		buf = append(buf, r...)
	}
	argstream.PatchLengthAndCRC(buf, uint32(len(buf)))
	return buf
}

// TestBootCopiesResidentProcessAndKernel mirrors a minimal no-swap boot:
// one IniE process plus the kernel's XKrn tag, expecting both to land in
// RAM with a process descriptor assigned.
func TestBootCopiesResidentProcessAndKernel(t *testing.T) {
	const baseAddr = 0x20000000
	flash := phys.NewRegion(baseAddr, 1<<20)

	procPayload := make([]byte, 0x100)
	for i := range procPayload {
		procPayload[i] = byte(i + 1)
	}
	kernelText := make([]byte, 0x800)
	for i := range kernelText {
		kernelText[i] = 0xCC
	}
	kernelData := make([]byte, 0x40)

	argsOffset := uint64(0x1000)
	// Section/kernel bytes are packed back to back starting right after
	// the argument stream's own footprint in FLASH.
	procOffset := uint32(0x2000)
	kernelOffset := procOffset + uint32(len(procPayload))

	iniE := buildRecord(argstream.NameIniE, buildMiniElfData(procOffset, []argstream.Section{
		{Virt: 0x10000, Len: uint32(len(procPayload)), Flags: argstream.FlagWrite},
	}))
	xkrn := buildRecord(argstream.NameXKrn, buildProgramDescriptionData(kernelOffset, uint32(len(kernelText)), uint32(len(kernelData)), 0))

	args := buildArgStream(iniE, xkrn)
	flash.CopyIn(baseAddr+argsOffset, args)
	flash.CopyIn(baseAddr+uint64(procOffset), procPayload)
	flash.CopyIn(baseAddr+uint64(kernelOffset), kernelText)

	out := Boot(Input{
		Flash:      flash,
		ArgsOffset: argsOffset,
		BaseAddr:   baseAddr,
		SRAMBase:   0x40000000,
		SRAMSize:   1 << 20,
	})

	if len(out.ProcessMappings) != 1 {
		t.Fatalf("len(ProcessMappings) = %d, want 1", len(out.ProcessMappings))
	}
	for pid, mappings := range out.ProcessMappings {
		if pid != 2 {
			t.Fatalf("pid = %d, want 2 (first resident process after the kernel's reserved slot)", pid)
		}
		if len(mappings) != 1 {
			t.Fatalf("len(mappings) = %d, want 1", len(mappings))
		}
		page := out.Config.RAM.Slice(mappings[0].Phys, memlayout.PageSize)
		for i := range procPayload {
			if page[i] != procPayload[i] {
				t.Fatalf("page[%d] = %d, want %d", i, page[i], procPayload[i])
			}
		}
	}
	if out.KernelText%memlayout.PageSize != 0 || out.KernelData%memlayout.PageSize != 0 {
		t.Fatalf("kernel sections not page aligned: text=%#x data=%#x", out.KernelText, out.KernelData)
	}
	if len(out.SwapMappings) != 0 {
		t.Fatalf("len(SwapMappings) = %d, want 0 (swap not configured)", len(out.SwapMappings))
	}
}

// TestBootMergesSwapResidentProcess exercises the full swap path: a
// secondary argument stream decrypted from FLASH swap page 0 contributes
// an IniS-resident process, which Boot transcodes into swap RAM rather
// than main RAM.
func TestBootMergesSwapResidentProcess(t *testing.T) {
	const baseAddr = 0x20000000
	flash := phys.NewRegion(baseAddr, 1<<16)

	const kernelOffset = 0x8000
	kernelText := make([]byte, 0x200)
	xkrn := buildRecord(argstream.NameXKrn, buildProgramDescriptionData(kernelOffset, uint32(len(kernelText)), 0, 0))
	args := buildArgStream(xkrn)

	argsOffset := uint64(0)
	flash.CopyIn(baseAddr+argsOffset, args)
	flash.CopyIn(baseAddr+kernelOffset, kernelText)

	swapFlash := phys.NewRegion(0x60000000, memlayout.PageSize*6)
	swapRAM := phys.NewRegion(0x50000000, memlayout.PageSize*8)
	srcKey := [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}
	partial := [8]byte{7, 7, 7, 7, 7, 7, 7, 7}

	// macOffset is relative to the ciphertext area: 2 pages in puts the
	// table at absolute page index 3, clear of both data pages.
	macOffset := uint64(memlayout.PageSize * 2)

	header := make([]byte, memlayout.PageSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(macOffset))
	binary.LittleEndian.PutUint32(header[4:8], 0) // empty AAD
	copy(header[8+64:8+64+8], partial[:])
	swapFlash.CopyIn(swapFlash.Base(), header)

	iniS := buildRecord(argstream.NameIniS, buildMiniElfData(uint32(memlayout.PageSize), []argstream.Section{
		{Virt: 0x30000, Len: 0x50},
	}))
	secondary := buildArgStream(iniS)

	secondaryCipher, secondaryTag := swapcrypto.EncryptSourcePage(srcKey, partial, nil, 0, padToPage(secondary))
	swapFlash.CopyIn(swapFlash.Base()+memlayout.PageSize, secondaryCipher)
	swapFlash.CopyIn(swapFlash.Base()+memlayout.PageSize+macOffset, secondaryTag[:])

	procPlain := make([]byte, memlayout.PageSize)
	for i := 0; i < 0x50; i++ {
		procPlain[i] = 0xAB
	}
	procCipher, procTag := swapcrypto.EncryptSourcePage(srcKey, partial, nil, memlayout.PageSize, procPlain)
	swapFlash.CopyIn(swapFlash.Base()+memlayout.PageSize*2, procCipher)
	swapFlash.CopyIn(swapFlash.Base()+memlayout.PageSize+macOffset+16, procTag[:])

	out := Boot(Input{
		Flash:      flash,
		ArgsOffset: argsOffset,
		BaseAddr:   baseAddr,
		SRAMBase:   0x40000000,
		SRAMSize:   1 << 20,
		Swap: &SwapInput{
			Flash:  swapFlash,
			RAM:    swapRAM,
			SrcKey: srcKey,
		},
	})

	if len(out.ProcessMappings) != 0 {
		t.Fatalf("len(ProcessMappings) = %d, want 0", len(out.ProcessMappings))
	}
	if len(out.SwapMappings) != 1 {
		t.Fatalf("len(SwapMappings) = %d, want 1", len(out.SwapMappings))
	}
	for pid, mappings := range out.SwapMappings {
		if pid != 2 {
			t.Fatalf("pid = %d, want 2", pid)
		}
		if len(mappings) != 1 {
			t.Fatalf("len(mappings) = %d, want 1", len(mappings))
		}
		plain, derr := out.Crypto.DecryptSwapFrom(mappings[0].SwapOffset, mappings[0].Virt, pid)
		if derr != nil {
			t.Fatalf("DecryptSwapFrom() error = %v", derr)
		}
		for i := 0; i < 0x50; i++ {
			if plain[i] != 0xAB {
				t.Fatalf("plain[%d] = %#x, want 0xAB", i, plain[i])
			}
		}
	}
}

func padToPage(buf []byte) []byte {
	out := make([]byte, memlayout.PageSize)
	copy(out, buf)
	return out
}
