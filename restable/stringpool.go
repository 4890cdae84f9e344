package restable

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	stringPoolFlagSorted = 0x00000001
	stringPoolFlagUTF8   = 0x00000100

	// stringPoolNoEntry marks an absent string/style offset, and doubles as
	// the "no value" sentinel some value records use for a key/name index.
	stringPoolNoEntry = 0xFFFFFFFF
)

// StyleSpan is one (name, first, last) run of inline markup recorded for a
// styled string, e.g. the <b> in "Hello <b>World</b>".
type StyleSpan struct {
	NameRef   uint32
	FirstChar uint32
	LastChar  uint32
}

// StringPool decodes an interned string table, UTF-8 or UTF-16, with
// optional per-string style spans. Strings are decoded lazily and cached,
// mirroring the teacher's stringTable type, but over random-access Cursors
// instead of a sequential io.Reader so package/type/key pools embedded at
// arbitrary chunk offsets can be read without buffering the whole chunk.
type StringPool struct {
	isUTF8 bool
	sorted bool

	base *Cursor // unbounded cursor over the same underlying reader

	dataStart int64
	dataEnd   int64

	stylesStart int64
	stylesEnd   int64

	offsets      []uint32
	styleOffsets []uint32

	cache      map[uint32]string
	styleCache map[uint32][]StyleSpan
}

// parseStringPool decodes a RES_STRING_POOL_TYPE chunk (spec.md §4.2).
func parseStringPool(top *Cursor, h ChunkHeader, sess *Session) (*StringPool, error) {
	if h.Type != chunkStringPool {
		return nil, newDecodeError(KindUnknownChunkType, h.Start, "expected string pool chunk", nil)
	}

	htail := top.HeaderTail(h)
	stringCount, err := htail.U32()
	if err != nil {
		return nil, err
	}
	styleCount, err := htail.U32()
	if err != nil {
		return nil, err
	}
	flags, err := htail.U32()
	if err != nil {
		return nil, err
	}
	stringsStart, err := htail.U32()
	if err != nil {
		return nil, err
	}
	stylesStart, err := htail.U32()
	if err != nil {
		return nil, err
	}

	p := &StringPool{
		isUTF8:     flags&stringPoolFlagUTF8 != 0,
		sorted:     flags&stringPoolFlagSorted != 0,
		base:       NewCursor(top.r, 0, -1),
		cache:      make(map[uint32]string),
		styleCache: make(map[uint32][]StyleSpan),
	}

	body := top.Body(h)
	p.offsets = make([]uint32, stringCount)
	for i := range p.offsets {
		if p.offsets[i], err = body.U32(); err != nil {
			if sess.lenient() {
				p.offsets = p.offsets[:i]
				break
			}
			return nil, err
		}
	}
	p.styleOffsets = make([]uint32, styleCount)
	for i := range p.styleOffsets {
		if p.styleOffsets[i], err = body.U32(); err != nil {
			if sess.lenient() {
				p.styleOffsets = p.styleOffsets[:i]
				break
			}
			return nil, err
		}
	}

	p.dataStart = h.Start + int64(stringsStart)
	p.dataEnd = h.End()
	p.stylesStart = h.Start + int64(stylesStart)
	p.stylesEnd = h.End()
	if stylesStart != 0 {
		p.dataEnd = p.stylesStart
	}

	return p, nil
}

// Len returns the number of interned strings.
func (p *StringPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.offsets)
}

// Get looks up string idx. idx == 0xFFFFFFFF is the "no string" sentinel
// and returns ("", nil) rather than an error. Out-of-range otherwise
// returns the empty string and StringPoolIndexOutOfRange.
func (p *StringPool) Get(idx uint32) (string, error) {
	if idx == stringPoolNoEntry {
		return "", nil
	}
	if p == nil || idx >= uint32(len(p.offsets)) {
		return "", newDecodeError(KindStringPoolIndexOutOfRange, 0, "string pool index out of range", nil)
	}
	if s, ok := p.cache[idx]; ok {
		return s, nil
	}

	off := p.dataStart + int64(p.offsets[idx])
	cur := NewCursor(p.base.r, off, p.dataEnd)

	var decoded string
	var err error
	if p.isUTF8 {
		decoded, err = parseStringUTF8(cur)
	} else {
		decoded, err = parseStringUTF16(cur)
	}
	if err != nil {
		return "", err
	}

	// Replace embedded NULs / invalid UTF-8 the same way the teacher's
	// stringTable.get does, so downstream XML serialization never chokes
	// on a string pulled from an obfuscated sample.
	if !utf8.ValidString(decoded) || strings.ContainsRune(decoded, 0) {
		decoded = strings.Map(func(r rune) rune {
			switch r {
			case 0, utf8.RuneError:
				return '￾'
			default:
				return r
			}
		}, decoded)
	}

	p.cache[idx] = decoded
	return decoded, nil
}

// Styles returns the style spans recorded for string idx, or nil if that
// string has none.
func (p *StringPool) Styles(idx uint32) ([]StyleSpan, error) {
	if p == nil || idx >= uint32(len(p.styleOffsets)) {
		return nil, nil
	}
	if spans, ok := p.styleCache[idx]; ok {
		return spans, nil
	}
	off := p.styleOffsets[idx]
	if off == stringPoolNoEntry {
		return nil, nil
	}

	cur := NewCursor(p.base.r, p.stylesStart+int64(off), p.stylesEnd)
	var spans []StyleSpan
	for {
		name, err := cur.U32()
		if err != nil {
			return nil, err
		}
		if name == stringPoolNoEntry {
			break
		}
		first, err := cur.U32()
		if err != nil {
			return nil, err
		}
		last, err := cur.U32()
		if err != nil {
			return nil, err
		}
		spans = append(spans, StyleSpan{NameRef: name, FirstChar: first, LastChar: last})
	}

	p.styleCache[idx] = spans
	return spans, nil
}

// parseStringUTF16 reads a two-u16-length-prefixed, NUL-terminated UTF-16LE
// string (spec.md §4.2).
func parseStringUTF16(r *Cursor) (string, error) {
	high, err := r.U16()
	if err != nil {
		return "", err
	}

	var count uint32
	if high&0x8000 != 0 {
		low, err := r.U16()
		if err != nil {
			return "", err
		}
		count = (uint32(high&0x7FFF) << 16) | uint32(low)
	} else {
		count = uint32(high)
	}

	units := make([]uint16, count)
	for i := range units {
		u, err := r.U16()
		if err != nil {
			return "", err
		}
		units[i] = u
	}

	decoded := utf16.Decode(units)
	for len(decoded) != 0 && decoded[len(decoded)-1] == 0 {
		decoded = decoded[:len(decoded)-1]
	}
	return string(decoded), nil
}

// parseStringUTF8 reads a two-u8-length-prefixed (char length, then byte
// length), NUL-terminated UTF-8 string (spec.md §4.2).
func parseStringUTF8(r *Cursor) (string, error) {
	if _, err := readUTF8Len(r); err != nil { // char length, unused
		return "", err
	}
	byteLen, err := readUTF8Len(r)
	if err != nil {
		return "", err
	}

	buf, err := r.Bytes(int(byteLen))
	if err != nil {
		return "", err
	}
	for len(buf) != 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}

func readUTF8Len(r *Cursor) (int64, error) {
	high, err := r.U8()
	if err != nil {
		return 0, err
	}
	if high&0x80 != 0 {
		low, err := r.U8()
		if err != nil {
			return 0, err
		}
		return (int64(high&0x7F) << 8) | int64(low), nil
	}
	return int64(high), nil
}
