package argstream

import (
	"encoding/binary"

	"github.com/gsora/xous-core/bootlog"
)

// SectionFlags is a bitmask carried alongside each Mini-ELF section's
// length, encoding the permissions the loader must apply and whether the
// section has backing bytes in the image at all.
type SectionFlags uint8

const (
	// FlagWrite marks a section the process may write (otherwise the
	// loader maps it read-only/executable-only).
	FlagWrite SectionFlags = 1 << 0
	// FlagNoCopy marks a section with no source bytes in the image: the
	// loader allocates and zeroes it (bss-like) instead of copying.
	FlagNoCopy SectionFlags = 1 << 1
	// FlagExec marks a section the process may execute.
	FlagExec SectionFlags = 1 << 2
)

// Writable, NoCopy, and Exec test individual bits of a flag set.
func (f SectionFlags) Writable() bool { return f&FlagWrite != 0 }
func (f SectionFlags) NoCopy() bool   { return f&FlagNoCopy != 0 }
func (f SectionFlags) Exec() bool     { return f&FlagExec != 0 }

// Section is one Mini-ELF section descriptor: a virtual load address, a
// byte length, and a permission/copy-policy bitmask. Sections do not carry
// their source bytes inline — those live in the flash image at
// load_offset and are fetched by the Mini-ELF loader as each section is
// processed.
type Section struct {
	Virt  uint32
	Len   uint32
	Flags SectionFlags
}

const (
	sectionEntryWords = 2 // virt word, then a packed len+flags word
	sectionEntrySize  = sectionEntryWords * wordSize

	lenMask = 0x00FFFFFF // low 24 bits carry the byte length
)

// MiniElf is the decoded body of an IniE/IniF/IniS tag: a flash-relative
// load offset, followed by a run of Section descriptors.
type MiniElf struct {
	LoadOffset uint32
	Sections   []Section
}

// ParseMiniElf decodes tag's data as a Mini-ELF body. The data is expected
// to hold one load-offset word followed by sectionEntrySize-byte section
// entries packed end to end; a partial trailing entry is a framing error.
func ParseMiniElf(tag Tag) (MiniElf, *bootlog.Error) {
	if len(tag.Data) < wordSize {
		return MiniElf{}, ErrBadFraming
	}
	body := tag.Data[wordSize:]
	if len(body)%sectionEntrySize != 0 {
		return MiniElf{}, ErrBadFraming
	}

	m := MiniElf{LoadOffset: tag.Word(0)}
	count := len(body) / sectionEntrySize
	m.Sections = make([]Section, count)
	for i := 0; i < count; i++ {
		off := i * sectionEntrySize
		virt := binary.LittleEndian.Uint32(body[off : off+wordSize])
		packed := binary.LittleEndian.Uint32(body[off+wordSize : off+sectionEntrySize])
		m.Sections[i] = Section{
			Virt:  virt,
			Len:   packed & lenMask,
			Flags: SectionFlags(packed >> 24),
		}
	}
	return m, nil
}

// ProgramDescription is the decoded body of the kernel's XKrn tag: a
// flash-relative load offset plus the three fixed section sizes the
// kernel binary is always built with (text, data, bss). Unlike user
// processes, the kernel has no variable section table — phase1.rs's
// XKrn arm reads exactly these four fields.
type ProgramDescription struct {
	LoadOffset uint32
	TextSize   uint32
	DataSize   uint32
	BssSize    uint32
}

const programDescriptionWords = 4

// ParseProgramDescription decodes an XKrn tag's data.
func ParseProgramDescription(tag Tag) (ProgramDescription, *bootlog.Error) {
	if len(tag.Data) < programDescriptionWords*wordSize {
		return ProgramDescription{}, ErrBadFraming
	}
	return ProgramDescription{
		LoadOffset: tag.Word(0),
		TextSize:   tag.Word(1),
		DataSize:   tag.Word(2),
		BssSize:    tag.Word(3),
	}, nil
}
