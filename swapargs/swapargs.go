// Package swapargs implements the swap argument merger: once the swap
// crypto layer has decrypted page 0 of the FLASH swap image into a
// secondary argument stream, this package merges its IniS records into
// the primary stream and patches the primary's length and CRC fields
// accordingly.
package swapargs

import (
	"github.com/gsora/xous-core/argstream"
	"github.com/gsora/xous-core/bootcfg"
	"github.com/gsora/xous-core/bootlog"
)

// ErrMergeSanityCheck guards the post-merge dead-reckoning assertion
// ported from the source's copy_args: after patching, the merged buffer
// must still begin with an XArg tag whose length field equals the merged
// length.
var ErrMergeSanityCheck = &bootlog.Error{Module: "swapargs", Message: "merged argument stream sanity check failed"}

// Merge appends every IniS record found in secondary (a decrypted
// secondary argument stream whose own CRC is not checked; its source swap
// page has already passed authentication) onto primary, patches the result's
// XArg length field, and recomputes its CRC-16/X25. All other secondary
// tag types are skipped. The merged stream is reserved out of cfg's
// top-of-RAM allocator rather than the Go heap, the same as every other
// piece of loader bookkeeping, so it lands in RAM cfg already accounts
// for. The caller is responsible for redirecting the active argument
// pointer to the returned buffer.
func Merge(cfg *bootcfg.Config, primary, secondary []byte) []byte {
	secondaryLen := argstream.DeclaredLength(secondary)
	secondary = secondary[:secondaryLen]

	merged := make([]byte, 0, uint64(len(primary))+uint64(secondaryLen)-argstream.XArgRecordBytes)
	merged = append(merged, primary...)

	it := argstream.New(secondary).Iter()
	if _, ok := it.Next(); !ok {
		bootlog.Panic(argstream.ErrBadFraming)
	}

	for {
		tag, ok := it.Next()
		if !ok {
			break
		}
		if tag.Is(argstream.NameIniS) {
			merged = argstream.AppendRecord(merged, argstream.RawRecordBytes(secondary, tag))
		} else {
			bootlog.Printf("swapargs: ignoring secondary tag %s\n", string(tag.Name[:]))
		}
	}

	argstream.PatchLengthAndCRC(merged, uint32(len(merged)))

	check := argstream.New(merged).Iter()
	head, ok := check.Next()
	bootlog.Assert(ok && head.Is(argstream.NameXArg) && head.Word(0) == uint32(len(merged)), ErrMergeSanityCheck)

	addr := cfg.Reserve(uint64(len(merged)))
	cfg.RAM.CopyIn(addr, merged)
	return cfg.RAM.Slice(addr, uint64(len(merged)))
}
