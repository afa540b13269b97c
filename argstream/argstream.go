// Package argstream implements the boot image's tagged argument stream
// reader: a flat sequence of {tag, size, data} records starting with an
// XArg framing record and a CRC-16/X25 guard over its payload. The
// iteration pattern is ported from gopheros's kernel/hal/multiboot
// package, which walks an analogous tag-length stream handed to it by a
// bootloader.
package argstream

import (
	"encoding/binary"

	"github.com/gsora/xous-core/bootlog"
	"github.com/gsora/xous-core/crc16"
)

// Tag names recognized by the loader. Four-byte ASCII, stored little-endian
// in the stream exactly as they read (so the on-disk bytes of "XArg" spell
// "XArg", not its byte-reversal).
var (
	NameXArg = [4]byte{'X', 'A', 'r', 'g'}
	NameIniE = [4]byte{'I', 'n', 'i', 'E'}
	NameIniF = [4]byte{'I', 'n', 'i', 'F'}
	NameIniS = [4]byte{'I', 'n', 'i', 'S'}
	NameXKrn = [4]byte{'X', 'K', 'r', 'n'}
)

const (
	// RecordHeaderSize is the fixed 8-byte header every record carries:
	// 4-byte tag, 2-byte size-in-words, 2 reserved bytes.
	RecordHeaderSize = recordHeaderSize

	recordHeaderSize = 8
	wordSize         = 4

	// xargMinDataWords is the minimum word count the first XArg record's
	// data must carry: word0 = total stream length, word1 = reserved,
	// word2 = CRC-16 (low 16 bits of the word) + reserved (high 16 bits).
	xargMinDataWords = 3
	xargMinDataBytes = xargMinDataWords * wordSize

	// crcOffsetInData is the byte offset of the CRC-16 field within the
	// XArg record's data, chosen so that the field lands at absolute
	// record offset 16..18 as specified (data starts at record offset 8).
	crcOffsetInData = 8

	// XArgRecordBytes is sizeof(XArg record): header plus its minimum
	// data payload. The swap argument merger subtracts exactly this many
	// bytes when sizing the merged stream, since the secondary stream's
	// own XArg header is dropped during the merge.
	XArgRecordBytes = recordHeaderSize + xargMinDataBytes
)

var (
	// ErrBadFraming is raised when the stream's declared length does not
	// fit the supplied buffer, the first record is not XArg, or the XArg
	// payload is too short to carry its own length/CRC fields.
	ErrBadFraming = &bootlog.Error{Module: "argstream", Message: "bad argument stream framing"}

	// ErrBadCRC is raised when the stored CRC-16/X25 does not match the
	// recomputed checksum over the XArg payload.
	ErrBadCRC = &bootlog.Error{Module: "argstream", Message: "XArg CRC mismatch"}
)

// Tag is one decoded record from the stream.
type Tag struct {
	Name [4]byte
	Data []byte // SizeWords*wordSize bytes immediately following the header

	// headerOff is the offset of this record's 8-byte header within the
	// buffer it was decoded from. It is zero for a Tag built by hand
	// rather than by an Iterator; RawRecordBytes is only meaningful for
	// iterator-produced tags.
	headerOff int
}

// Is reports whether the tag's name equals name.
func (t Tag) Is(name [4]byte) bool { return t.Name == name }

// Word returns the idx'th little-endian 32-bit word of the tag's data.
func (t Tag) Word(idx int) uint32 {
	off := idx * wordSize
	return binary.LittleEndian.Uint32(t.Data[off : off+wordSize])
}

// Stream is a decoded view over a tagged argument buffer.
type Stream struct {
	Buf []byte
}

// New wraps buf without validating it; call Validate before trusting the
// stream's length or reading past the first tag.
func New(buf []byte) *Stream { return &Stream{Buf: buf} }

// Size returns len(s.Buf).
func (s *Stream) Size() uint64 { return uint64(len(s.Buf)) }

// Iterator walks the records of a Stream in order.
type Iterator struct {
	buf []byte
	pos int
}

// Iter returns an Iterator positioned at the first record.
func (s *Stream) Iter() *Iterator { return &Iterator{buf: s.Buf} }

// Next decodes the next record. It returns ok=false once the buffer is
// exhausted or a record's declared size would run past the buffer end —
// the latter is treated as end-of-stream here; framing is validated
// up-front by Validate, not record-by-record during iteration.
func (it *Iterator) Next() (Tag, bool) {
	if it.pos+recordHeaderSize > len(it.buf) {
		return Tag{}, false
	}
	var name [4]byte
	copy(name[:], it.buf[it.pos:it.pos+4])
	sizeWords := binary.LittleEndian.Uint16(it.buf[it.pos+4 : it.pos+6])
	dataStart := it.pos + recordHeaderSize
	dataLen := int(sizeWords) * wordSize
	if dataStart+dataLen > len(it.buf) {
		return Tag{}, false
	}
	tag := Tag{Name: name, Data: it.buf[dataStart : dataStart+dataLen], headerOff: it.pos}
	it.pos = dataStart + dataLen
	return tag, true
}

// Validate checks that buf begins with a well-formed XArg record: its
// declared total length fits within buf, and the CRC-16/X25 stored at the
// fixed offset matches a recomputation over the XArg payload with the CRC
// field itself treated as zero (the conventional way to make a checksum
// field self-referential: the image builder computes it with the slot
// zeroed, so the verifier must do the same). Validate returns the declared
// total stream length on success.
func Validate(buf []byte) (uint64, *bootlog.Error) {
	it := New(buf).Iter()
	xarg, ok := it.Next()
	if !ok || !xarg.Is(NameXArg) || len(xarg.Data) < xargMinDataBytes {
		return 0, ErrBadFraming
	}

	totalLen := xarg.Word(0)
	if totalLen == 0 || uint64(totalLen) > uint64(len(buf)) {
		return 0, ErrBadFraming
	}

	storedCRC := binary.LittleEndian.Uint16(xarg.Data[crcOffsetInData : crcOffsetInData+2])
	if computeCRC(xarg.Data) != storedCRC {
		return 0, ErrBadCRC
	}

	return uint64(totalLen), nil
}

// computeCRC returns the CRC-16/X25 of data with the two CRC bytes
// (crcOffsetInData..+2) treated as zero.
func computeCRC(data []byte) uint16 {
	scratch := make([]byte, len(data))
	copy(scratch, data)
	scratch[crcOffsetInData] = 0
	scratch[crcOffsetInData+1] = 0
	return crc16.Checksum(scratch)
}

// PatchLengthAndCRC rewrites the XArg record at the start of buf so that
// its length field reads newLen and its CRC is recomputed accordingly. It
// is used by the swap argument merger after appending IniS records from
// the secondary stream.
func PatchLengthAndCRC(buf []byte, newLen uint32) {
	it := New(buf).Iter()
	xarg, ok := it.Next()
	if !ok || !xarg.Is(NameXArg) {
		bootlog.Panic(ErrBadFraming)
	}
	binary.LittleEndian.PutUint32(xarg.Data[0:4], newLen)
	crc := computeCRC(xarg.Data)
	binary.LittleEndian.PutUint16(xarg.Data[crcOffsetInData:crcOffsetInData+2], crc)
}

// DeclaredLength reads the XArg length field without validating the CRC.
// Used when reading the decrypted secondary (swap) argument stream, whose
// CRC is not checked; the source swap page it came from has already passed
// authentication.
func DeclaredLength(buf []byte) uint32 {
	it := New(buf).Iter()
	xarg, ok := it.Next()
	if !ok || !xarg.Is(NameXArg) {
		bootlog.Panic(ErrBadFraming)
	}
	return xarg.Word(0)
}

// AppendRecord appends a raw tag+data record (including its own header
// bytes, already packed by the caller) — used by the swap argument merger
// which copies whole IniS records verbatim from the secondary stream.
func AppendRecord(dst []byte, rawRecord []byte) []byte {
	return append(dst, rawRecord...)
}

// RawRecordBytes returns the full on-wire bytes of tag (header + data):
// only valid for a Tag produced by an Iterator over buf.
func RawRecordBytes(buf []byte, tag Tag) []byte {
	return buf[tag.headerOff : tag.headerOff+recordHeaderSize+len(tag.Data)]
}
