// Package boot wires the loader's eight components together into the
// single entry point a freestanding reset vector calls: parse the
// argument stream, allocate the page tracker, merge in any swap-resident
// process list, size and build the process table, then copy every
// process — and the kernel — into RAM or encrypted swap. The call
// sequence mirrors phase1.rs's phase_1, ported from
// original_source/loader/src/phase1.rs.
package boot

import (
	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/bootcfg"
	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/elfload"
	"github.com/gsora/xous-core/memlayout"
	"github.com/gsora/xous-core/phys"
	"github.com/gsora/xous-core/swapargs"
	"github.com/gsora/xous-core/swapcrypto"
	"github.com/gsora/xous-core/swapimg"
	"github.com/gsora/xous-core/trng"
)

// SwapInput bundles the arenas and key needed to activate the encrypted
// swap feature. Flash covers the whole FLASH swap image (header page,
// then ciphertext and MAC table); RAM is the swap-RAM region the
// transcoder re-encrypts pages into; SrcKey is the FLASH-side key,
// supplied by the image builder rather than negotiated here.
type SwapInput struct {
	Flash  *phys.Region
	RAM    *phys.Region
	SrcKey [32]byte
}

// Input bundles everything Boot needs at reset.
type Input struct {
	// Flash covers the boot image: the argument stream at ArgsOffset,
	// plus every IniE/IniF/XKrn section's source bytes, resolved
	// relative to BaseAddr.
	Flash      *phys.Region
	ArgsOffset uint64
	BaseAddr   uint64

	SRAMBase uint64
	SRAMSize uint64
	Regions  []bootcfg.Region

	// Swap is nil when the encrypted swap feature is not configured.
	Swap *SwapInput
}

// Outcome is everything Boot hands off to the kernel once it returns,
// keyed by process id where per-process data applies.
type Outcome struct {
	Config          *bootcfg.Config
	ProcessMappings map[uint32][]elfload.Mapping
	SwapMappings    map[uint32][]swapimg.Mapping
	Crypto          *swapcrypto.Context
	KernelText      uint64
	KernelData      uint64
}

var (
	// ErrNoKernelTag is raised when the argument stream carries no XKrn
	// record: there is no kernel to hand control to.
	ErrNoKernelTag = &bootlog.Error{Module: "boot", Message: "argument stream carries no XKrn record"}

	// ErrSwapNotConfigured is raised when an IniS tag appears in the
	// argument stream but Input.Swap was nil, so there is no crypto
	// context to transcode it with.
	ErrSwapNotConfigured = &bootlog.Error{Module: "boot", Message: "IniS tag present but swap is not configured"}
)

// residentTag is one process-bearing record pulled out of the merged
// argument stream, tagged with whether it needs the Mini-ELF loader or
// the swap image transcoder.
type residentTag struct {
	tag    argstream.Tag
	isIniE bool
	isIniS bool
}

// Boot runs every phase of the loader in order and returns what the
// kernel needs for hand-off. It panics via bootlog.Panic on any Framing
// or Layout error — the loader never attempts a partial boot.
func Boot(in Input) *Outcome {
	maxArgs := in.Flash.Slice(in.Flash.Base()+in.ArgsOffset, in.Flash.Size()-in.ArgsOffset)
	declaredLen, ferr := argstream.Validate(maxArgs)
	if ferr != nil {
		bootlog.Panic(ferr)
	}
	argBuf := maxArgs[:declaredLen]

	cfg := bootcfg.NewConfig(in.SRAMBase, in.SRAMSize, in.Regions)
	cfg.BaseAddr = in.BaseAddr

	var crypto *swapcrypto.Context
	if in.Swap != nil {
		headerPage := in.Swap.Flash.Slice(in.Swap.Flash.Base(), memlayout.PageSize)
		header := swapcrypto.ParseSourceHeader(headerPage)
		cipherAreaLen := swapcrypto.CipherAreaLenFromRAMSize(in.Swap.RAM.Size())
		dstKey := trng.Key32(trng.Default())

		cfg.Swap = &bootcfg.Swap{
			FlashOffset: in.Swap.Flash.Base(),
			RAMOffset:   in.Swap.RAM.Base(),
			RAMSize:     in.Swap.RAM.Size(),
			Key:         in.Swap.SrcKey,
		}

		crypto = swapcrypto.NewContext(
			in.Swap.SrcKey, dstKey, header.PartialNonce, header.AAD,
			in.Swap.Flash, in.Swap.RAM, header.MacOffset, cipherAreaLen,
		)

		secondary := crypto.DecryptSrcPageAt(0)
		argBuf = swapargs.Merge(cfg, argBuf, secondary)
	}

	// The merged stream is the final word on which processes exist and
	// which are swap-resident, so the process table can only be sized
	// after the merge runs — a reordering against phase1.rs's literal
	// call sequence, which assumes its process count is already known
	// before copy_args runs. See DESIGN.md.
	var kernelTag argstream.Tag
	haveKernel := false
	var resident []residentTag

	it := argstream.New(argBuf).Iter()
	it.Next() // XArg, already validated
	for {
		tag, ok := it.Next()
		if !ok {
			break
		}
		switch {
		case tag.Is(argstream.NameIniE):
			resident = append(resident, residentTag{tag: tag, isIniE: true})
		case tag.Is(argstream.NameIniF):
			resident = append(resident, residentTag{tag: tag})
		case tag.Is(argstream.NameIniS):
			resident = append(resident, residentTag{tag: tag, isIniS: true})
		case tag.Is(argstream.NameXKrn):
			kernelTag = tag
			haveKernel = true
		}
	}
	if !haveKernel {
		bootlog.Panic(ErrNoKernelTag)
	}

	procs := bootcfg.BuildProcessTable(cfg, len(resident))
	bootcfg.AllocateSwapRoots(cfg, procs)

	out := &Outcome{
		Config:          cfg,
		ProcessMappings: make(map[uint32][]elfload.Mapping),
		SwapMappings:    make(map[uint32][]swapimg.Mapping),
		Crypto:          crypto,
	}

	for i, r := range resident {
		proc := procs[i]
		cfg.ExtraPages = 0

		elf, perr := argstream.ParseMiniElf(r.tag)
		if perr != nil {
			bootlog.Panic(perr)
		}

		if r.isIniS {
			if crypto == nil {
				bootlog.Panic(ErrSwapNotConfigured)
			}
			res := swapimg.Transcode(cfg, crypto, elf, proc.PID)
			out.SwapMappings[proc.PID] = res.Mappings
			continue
		}

		res := elfload.CopyProcess(cfg, in.Flash, elf, r.isIniE)
		out.ProcessMappings[proc.PID] = res.Mappings
	}

	prog, perr := argstream.ParseProgramDescription(kernelTag)
	if perr != nil {
		bootlog.Panic(perr)
	}
	cfg.ExtraPages = 0
	out.KernelText, out.KernelData = elfload.CopyKernel(cfg, in.Flash, prog)

	// Every page reserved over the course of this boot — the process
	// table, swap roots, merged argument buffer, and every copied
	// section — belongs to the kernel until a later stage reassigns
	// resident pages to their own processes.
	cfg.MarkLoaderPagesOwned()

	return out
}
