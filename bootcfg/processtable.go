package bootcfg

import "github.com/gsora/xous-core/memlayout"

// InitialProcess is one process descriptor: the root page table pointer
// (satp), the process's entry and stack addresses, its env word, and an
// optional swap root page table pointer (0 when swap is not configured or
// this process is not swap-resident).
type InitialProcess struct {
	SATP       uint64
	Entrypoint uint64
	SP         uint64
	Env        uint64
	SwapRoot   uint64
	PID        uint32
}

// descriptorSize is the reserved on-RAM footprint of one InitialProcess,
// matching its field count at one machine word (8 bytes) apiece.
const descriptorSize = 6 * 8

// BuildProcessTable reserves (1+count)*descriptorSize bytes from the
// region allocator — one extra slot for the kernel process that always
// occupies index 0 — and returns count freshly zeroed process
// descriptors. The reserved RAM is already zero (phys.Region starts every
// arena zeroed), so no explicit zero-fill pass is needed beyond the
// allocation itself.
func BuildProcessTable(cfg *Config, count int) []*InitialProcess {
	cfg.Reserve(uint64(1+count) * descriptorSize)

	procs := make([]*InitialProcess, count)
	for i := range procs {
		procs[i] = &InitialProcess{PID: uint32(i + 2)} // pid 1 is the kernel
	}
	cfg.Processes = procs
	return procs
}

// AllocateSwapRoots gives each process in procs its own page-table-sized
// swap root block, allocated before any of the processes' sections are
// copied — the ordering guarantee swap-enabled boots rely on. It is a
// no-op when cfg.Swap is nil.
func AllocateSwapRoots(cfg *Config, procs []*InitialProcess) {
	if cfg.Swap == nil {
		return
	}
	for _, p := range procs {
		p.SwapRoot = cfg.AllocPage()
	}
}

// MakeSATP packs a root page table's physical page number, process id, and
// mode bit into a RISC-V satp-shaped value: mode in the top bit, pid in the
// next 9 bits, PPN in the rest — matching Sv32's layout, the target MMU
// mode for this loader.
func MakeSATP(rootPage uint64, pid uint32, modeOn bool) uint64 {
	ppn := rootPage / memlayout.PageSize
	satp := ppn & 0x3FFFFF
	satp |= uint64(pid&0x1FF) << 22
	if modeOn {
		satp |= 1 << 31
	}
	return satp
}
