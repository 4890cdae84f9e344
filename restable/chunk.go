package restable

import (
	"encoding/binary"
	"io"
)

// chunkHeaderSize is the fixed-size generic prefix every ARSC chunk starts
// with: a 16-bit type, a 16-bit header size, and a 32-bit total size.
const chunkHeaderSize = 2 + 2 + 4

// Chunk type codes from the ARSC format (spec.md §4.5).
const (
	chunkTable         = 0x0002
	chunkStringPool    = 0x0001
	chunkTablePackage  = 0x0200
	chunkTableType     = 0x0201
	chunkTableTypeSpec = 0x0202
	chunkTableLibrary  = 0x0203
	chunkTableOverlayable       = 0x0204
	chunkTableOverlayablePolicy = 0x0205
	chunkTableStagedAlias       = 0x0206
)

// typeFlagSparse/typeFlagOffset16 are bits of the Type chunk's flags byte.
const (
	typeFlagSparse    = 0x01
	typeFlagOffset16  = 0x02
)

// ChunkHeader is the decoded generic chunk prefix plus the chunk's absolute
// start offset, so trailing unread bytes can be skipped deterministically.
type ChunkHeader struct {
	Type       uint16
	HeaderSize uint16
	Size       uint32
	Start      int64
}

// End returns the chunk's absolute exclusive end offset.
func (h ChunkHeader) End() int64 { return h.Start + int64(h.Size) }

// Cursor is a little-endian typed reader over a seekable, random-access
// byte stream, bounded to [start, end). end < 0 means unbounded (bounded
// only by the underlying reader's own length).
type Cursor struct {
	r   io.ReaderAt
	pos int64
	end int64
}

// NewCursor returns a Cursor over r, bounded to [start, end). Pass end < 0
// for an unbounded cursor (e.g. a string pool's base cursor, whose bound
// is enforced by read failures of the underlying reader rather than a
// tracked end).
func NewCursor(r io.ReaderAt, start, end int64) *Cursor {
	return &Cursor{r: r, pos: start, end: end}
}

// Pos returns the current absolute read position.
func (c *Cursor) Pos() int64 { return c.pos }

// Remaining returns the number of bytes left before the cursor's bound, or
// -1 if the cursor is unbounded.
func (c *Cursor) Remaining() int64 {
	if c.end < 0 {
		return -1
	}
	return c.end - c.pos
}

// Seek moves the cursor to an absolute offset within its bound.
func (c *Cursor) Seek(off int64) error {
	if off < 0 || (c.end >= 0 && off > c.end) {
		return newDecodeError(KindTruncatedChunk, off, "seek out of chunk bounds", nil)
	}
	c.pos = off
	return nil
}

// Skip advances the cursor by n bytes without reading them.
func (c *Cursor) Skip(n int64) error { return c.Seek(c.pos + n) }

func (c *Cursor) readN(n int) ([]byte, error) {
	if c.end >= 0 && c.pos+int64(n) > c.end {
		return nil, newDecodeError(KindTruncatedChunk, c.pos, "read past chunk end", nil)
	}
	buf := make([]byte, n)
	read, err := c.r.ReadAt(buf, c.pos)
	if err != nil && err != io.EOF {
		return nil, newDecodeError(KindIoFailure, c.pos, "underlying read failed", err)
	}
	if read < n {
		return nil, newDecodeError(KindTruncatedChunk, c.pos, "unexpected end of input", io.ErrUnexpectedEOF)
	}
	c.pos += int64(n)
	return buf, nil
}

// U8 reads one byte.
func (c *Cursor) U8() (uint8, error) {
	b, err := c.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (c *Cursor) U16() (uint16, error) {
	b, err := c.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (c *Cursor) U32() (uint32, error) {
	b, err := c.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// I32 reads a little-endian int32.
func (c *Cursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) { return c.readN(n) }

// RequireAligned enforces 4-byte alignment of the current position. In
// lenient mode misalignment is tolerated (spec.md §4.1).
func (c *Cursor) RequireAligned(lenient bool) error {
	if c.pos%4 == 0 {
		return nil
	}
	if lenient {
		return nil
	}
	return newDecodeError(KindUnalignedRead, c.pos, "expected 4-byte aligned read", nil)
}

// ReadChunkHeader reads the generic 8-byte chunk prefix and validates that
// the declared total size fits within this cursor's bound.
func (c *Cursor) ReadChunkHeader() (ChunkHeader, error) {
	start := c.pos
	t, err := c.U16()
	if err != nil {
		return ChunkHeader{}, err
	}
	hs, err := c.U16()
	if err != nil {
		return ChunkHeader{}, err
	}
	sz, err := c.U32()
	if err != nil {
		return ChunkHeader{}, err
	}
	if sz < uint32(hs) || hs < chunkHeaderSize {
		return ChunkHeader{}, newDecodeError(KindTruncatedChunk, start, "chunk size smaller than its header", nil)
	}
	h := ChunkHeader{Type: t, HeaderSize: hs, Size: sz, Start: start}
	if c.end >= 0 && h.End() > c.end {
		return ChunkHeader{}, newDecodeError(KindTruncatedChunk, start, "chunk size exceeds available input", nil)
	}
	return h, nil
}

// Body returns a Cursor scoped to the chunk's body, i.e. the bytes after
// its (possibly chunk-specific, larger than generic) header.
func (c *Cursor) Body(h ChunkHeader) *Cursor {
	return NewCursor(c.r, h.Start+int64(h.HeaderSize), h.End())
}

// HeaderTail returns a Cursor scoped to the chunk-specific header fields
// that follow the generic 8-byte prefix, i.e. [Start+8, Start+HeaderSize).
func (c *Cursor) HeaderTail(h ChunkHeader) *Cursor {
	return NewCursor(c.r, h.Start+chunkHeaderSize, h.Start+int64(h.HeaderSize))
}

// SeekToEnd moves the cursor to the chunk's end, skipping any unread
// trailing bytes deterministically.
func (c *Cursor) SeekToEnd(h ChunkHeader) error { return c.Seek(h.End()) }
