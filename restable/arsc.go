package restable

import (
	"errors"
	"io"
	"unicode/utf16"
)

// FlagsOffset names one entry-flags region the Publicizer can patch: the
// absolute byte offset of a TypeSpec chunk's flags[] array, plus the
// number of u32 entries in it (spec.md §4.8, grounded on
// AndrolibResources.publicizeResources / ARSCDecoder.FlagsOffset).
type FlagsOffset struct {
	Offset int64
	Count  int
}

// DecodeResult is everything a decode pass produces: the populated Table
// plus the byte regions a later Publicize() call can patch.
type DecodeResult struct {
	Table        *Table
	FlagsOffsets []FlagsOffset
	Incomplete   bool
}

// Decode drives the chunked binary walk over resources.arsc (spec.md
// §4.5): Table -> globals pool -> Package* -> (TypeSpec|Type|Library|
// StagedAlias|Overlayable|OverlayablePolicy)*. r must support random
// access (ReaderAt); size is the total input length.
func Decode(r io.ReaderAt, size int64, sess *Session) (*DecodeResult, error) {
	if sess == nil {
		sess = NewSession()
	}
	top := NewCursor(r, 0, size)

	h, err := top.ReadChunkHeader()
	if err != nil {
		return nil, err
	}
	if h.Type != chunkTable {
		return nil, newDecodeError(KindUnknownChunkType, h.Start, "expected RES_TABLE_TYPE chunk", nil)
	}

	htail := top.HeaderTail(h)
	packageCount, err := htail.U32()
	if err != nil {
		return nil, err
	}

	body := top.Body(h)

	globalsHeader, err := body.ReadChunkHeader()
	if err != nil {
		return nil, err
	}
	globals, err := parseStringPool(body, globalsHeader, sess)
	if err != nil {
		return nil, err
	}
	if err := body.SeekToEnd(globalsHeader); err != nil {
		return nil, err
	}

	d := &decoder{sess: sess, table: NewTable(), globals: globals}

	var packages []*Package
	for i := uint32(0); i < packageCount; i++ {
		if d.sess.cancelled() {
			if d.sess.lenient() {
				d.incomplete = true
				break
			}
			return nil, ErrCancelled
		}

		pkgHeader, err := body.ReadChunkHeader()
		if err != nil {
			if d.sess.lenient() {
				d.incomplete = true
				break
			}
			return nil, err
		}
		if pkgHeader.Type != chunkTablePackage {
			if !d.sess.lenient() {
				return nil, newDecodeError(KindUnknownChunkType, pkgHeader.Start, "expected RES_TABLE_PACKAGE_TYPE chunk", nil)
			}
			d.sess.warn(newDecodeError(KindUnknownChunkType, pkgHeader.Start, "skipping unexpected chunk while scanning for packages", nil))
			if err := body.SeekToEnd(pkgHeader); err != nil {
				return nil, err
			}
			continue
		}

		pkg, err := d.parsePackage(body, pkgHeader)
		if err != nil {
			if d.sess.lenient() {
				d.sess.warn(err)
				if serr := body.SeekToEnd(pkgHeader); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, err
		}
		packages = append(packages, pkg)
		if err := body.SeekToEnd(pkgHeader); err != nil {
			return nil, err
		}
	}

	main := selectMainPackage(packages)
	for _, pkg := range packages {
		if err := d.table.AddPackage(pkg, pkg == main); err != nil {
			return nil, err
		}
	}
	if main != nil {
		d.sess.logger().WithField("package", main.Name).WithField("id", main.ID).Info("selected main package")
	}

	return &DecodeResult{Table: d.table, FlagsOffsets: d.flagsOffsets, Incomplete: d.incomplete}, nil
}

// decoder carries the cross-chunk state threaded through one Decode call:
// the globals (value) string pool and the table being built.
type decoder struct {
	sess    *Session
	table   *Table
	globals *StringPool

	flagsOffsets []FlagsOffset
	incomplete   bool
}

// parsePackage decodes one RES_TABLE_PACKAGE_TYPE chunk and everything
// nested inside it (spec.md §4.5).
func (d *decoder) parsePackage(top *Cursor, h ChunkHeader) (*Package, error) {
	htail := top.HeaderTail(h)
	id, err := htail.U32()
	if err != nil {
		return nil, err
	}
	nameBuf, err := htail.Bytes(256)
	if err != nil {
		return nil, err
	}
	name := decodePackageName(nameBuf)

	typeStringsOff, err := htail.U32()
	if err != nil {
		return nil, err
	}
	if _, err := htail.U32(); err != nil { // lastPublicType
		return nil, err
	}
	keyStringsOff, err := htail.U32()
	if err != nil {
		return nil, err
	}
	if _, err := htail.U32(); err != nil { // lastPublicKey
		return nil, err
	}
	// typeIdOffset is present only when the chunk-specific header is wider
	// than the base layout (newer aapt2 outputs); spec.md §4.5 notes this
	// as "plus optional type_id_offset". Its value is read and discarded.
	if htail.Remaining() > 0 {
		if _, err := htail.U32(); err != nil {
			return nil, err
		}
	}

	if !d.sess.SharedLibrary && id >= 256 {
		return nil, newDecodeError(KindUnknownTypeId, h.Start, "package id out of range", nil)
	}
	pkg := newPackage(uint8(id), name)

	if typeStringsOff != 0 {
		if err := top.Seek(h.Start + int64(typeStringsOff)); err != nil {
			return nil, err
		}
		tsh, err := top.ReadChunkHeader()
		if err != nil {
			return nil, err
		}
		pkg.TypeStrings, err = parseStringPool(top, tsh, d.sess)
		if err != nil {
			return nil, err
		}
	}
	if keyStringsOff != 0 {
		if err := top.Seek(h.Start + int64(keyStringsOff)); err != nil {
			return nil, err
		}
		ksh, err := top.ReadChunkHeader()
		if err != nil {
			return nil, err
		}
		pkg.KeyStrings, err = parseStringPool(top, ksh, d.sess)
		if err != nil {
			return nil, err
		}
	}

	// Walk the remaining chunks in this package: TypeSpec/Type chunks
	// (state machine InTypeSpec/InType) plus the forward-compat Library/
	// StagedAlias/Overlayable/OverlayablePolicy chunks (spec.md §4.5).
	cur := NewCursor(top.r, top.Pos(), h.End())
	// Skip the pools themselves if the cursor landed inside them (they are
	// read via absolute seeks above, not sequentially).
	if err := cur.Seek(maxInt64(cur.Pos(), poolEnd(pkg.TypeStrings), poolEnd(pkg.KeyStrings))); err != nil {
		return nil, err
	}

	for cur.Pos() < h.End() {
		if d.sess.cancelled() {
			if d.sess.lenient() {
				d.incomplete = true
				break
			}
			return nil, ErrCancelled
		}

		ch, err := cur.ReadChunkHeader()
		if err != nil {
			if d.sess.lenient() {
				d.sess.warn(err)
				break
			}
			return nil, err
		}

		switch ch.Type {
		case chunkTableTypeSpec:
			if err := d.parseTypeSpec(cur, ch, pkg); err != nil && !d.sess.lenient() {
				return nil, err
			} else if err != nil {
				d.sess.warn(err)
			}
		case chunkTableType:
			if err := d.parseType(cur, ch, pkg); err != nil && !d.sess.lenient() {
				return nil, err
			} else if err != nil {
				d.sess.warn(err)
			}
		case chunkTableLibrary:
			d.parseLibrary(cur, ch, pkg)
		case chunkTableStagedAlias:
			d.parseStagedAlias(cur, ch, pkg)
		case chunkTableOverlayable:
			d.parseOverlayable(cur, ch, pkg)
		case chunkTableOverlayablePolicy:
			d.parseOverlayablePolicy(cur, ch, pkg)
		default:
			if !d.sess.lenient() {
				return nil, newDecodeError(KindUnknownChunkType, ch.Start, "unexpected chunk inside package", nil)
			}
			d.sess.warn(newDecodeError(KindUnknownChunkType, ch.Start, "skipping unknown chunk inside package", nil))
		}

		if err := cur.SeekToEnd(ch); err != nil {
			return nil, err
		}
	}

	return pkg, nil
}

func poolEnd(p *StringPool) int64 {
	if p == nil {
		return 0
	}
	return p.dataEnd
}

func maxInt64(vs ...int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// decodePackageName strips the trailing NUL padding from the package
// header's fixed 128-UTF-16-code-unit name field (spec.md §4.5).
func decodePackageName(buf []byte) string {
	units := make([]uint16, 0, 128)
	for i := 0; i+1 < len(buf); i += 2 {
		u := uint16(buf[i]) | uint16(buf[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// parseTypeSpec decodes one RES_TABLE_TYPE_SPEC_TYPE chunk: { id, res0,
// res1, entry_count, flags[entry_count] } (spec.md §4.5). Subsequent
// TypeSpec chunks for the same id merge flags into the existing TypeSpec.
func (d *decoder) parseTypeSpec(top *Cursor, h ChunkHeader, pkg *Package) error {
	htail := top.HeaderTail(h)
	id, err := htail.U8()
	if err != nil {
		return err
	}
	if _, err := htail.U8(); err != nil { // res0
		return err
	}
	if _, err := htail.U16(); err != nil { // res1
		return err
	}
	entryCount, err := htail.U32()
	if err != nil {
		return err
	}

	flagsOffset := top.Body(h).Pos()
	body := top.Body(h)
	flags := make([]uint32, entryCount)
	for i := range flags {
		if flags[i], err = body.U32(); err != nil {
			if d.sess.lenient() {
				flags = flags[:i]
				break
			}
			return err
		}
	}

	typeName := ""
	if pkg.TypeStrings != nil {
		typeName, _ = pkg.TypeStrings.Get(uint32(id) - 1)
	}

	ts, existed := pkg.typeSpecsByID[id]
	if !existed {
		ts = pkg.ensureTypeSpec(id, typeName)
		ts.Flags = flags
		for range flags {
			ts.Specs = append(ts.Specs, nil)
		}
	} else {
		ts.mergeFlags(flags)
	}

	d.flagsOffsets = append(d.flagsOffsets, FlagsOffset{Offset: flagsOffset, Count: len(flags)})
	return nil
}

// parseType decodes one RES_TABLE_TYPE_TYPE chunk, dense or sparse
// (spec.md §4.5).
func (d *decoder) parseType(top *Cursor, h ChunkHeader, pkg *Package) error {
	htail := top.HeaderTail(h)
	id, err := htail.U8()
	if err != nil {
		return err
	}
	flagsByte, err := htail.U8()
	if err != nil {
		return err
	}
	if _, err := htail.U16(); err != nil { // reserved
		return err
	}
	entryCount, err := htail.U32()
	if err != nil {
		return err
	}
	entriesStart, err := htail.U32()
	if err != nil {
		return err
	}

	// ResTable_type's chunk-specific header runs through the config block
	// (header_size = 20 + config.size), so the config itself is read from
	// the remainder of htail, not from the post-header body cursor.
	cfg, err := parseConfig(htail, h.Start+int64(h.HeaderSize), d.sess)
	if err != nil {
		return err
	}
	body := top.Body(h)

	sparse := flagsByte&typeFlagSparse != 0
	entriesAbsStart := h.Start + int64(entriesStart)
	offsetsCount := (entriesAbsStart - body.Pos()) / 4
	if offsetsCount < 0 {
		return newDecodeError(KindTruncatedChunk, body.Pos(), "entries_start precedes offset table", nil)
	}

	ts, ok := pkg.typeSpecsByID[id]
	if !ok {
		if !d.sess.lenient() {
			return newDecodeError(KindUnknownTypeId, h.Start, "type chunk references unknown type id", nil)
		}
		typeName := ""
		if pkg.TypeStrings != nil {
			typeName, _ = pkg.TypeStrings.Get(uint32(id) - 1)
		}
		ts = pkg.ensureTypeSpec(id, typeName)
	}
	ts.ensureEntryCount(int(entryCount))

	type presentEntry struct {
		idx int
		off uint32
	}
	var present []presentEntry

	if sparse {
		for i := int64(0); i < offsetsCount; i++ {
			idx, err := body.U16()
			if err != nil {
				return err
			}
			halfOff, err := body.U16()
			if err != nil {
				return err
			}
			present = append(present, presentEntry{idx: int(idx), off: uint32(halfOff) * 4})
		}
	} else {
		for i := int64(0); i < offsetsCount; i++ {
			off, err := body.U32()
			if err != nil {
				return err
			}
			if off == stringPoolNoEntry {
				continue
			}
			present = append(present, presentEntry{idx: int(i), off: off})
		}
	}

	for _, pe := range present {
		if pe.idx < 0 || pe.idx >= ts.EntryCount() {
			if d.sess.lenient() {
				continue
			}
			return newDecodeError(KindTruncatedChunk, h.Start, "entry index outside type-spec entry count", nil)
		}

		entryCur := NewCursor(top.r, entriesAbsStart+int64(pe.off), h.End())
		spec, res, err := d.parseEntry(entryCur, pkg, ts, pe.idx, cfg)
		if err != nil {
			if d.sess.lenient() {
				d.sess.warn(err)
				continue
			}
			return err
		}
		if spec != nil {
			if _, err := spec.AddResource(cfg, res, false); err != nil {
				// DuplicateResource is fatal unless the caller explicitly
				// opts into overwrite (spec.md §7); lenient mode recovers
				// structural/referential errors, not this one.
				var decErr *DecodeError
				if errors.As(err, &decErr) && decErr.Kind == KindDuplicateResource {
					return err
				}
				if d.sess.lenient() {
					d.sess.warn(err)
					continue
				}
				return err
			}
		}
	}

	return nil
}

// parseEntry decodes one entry: { size, flags, key_index } then either an
// inline typed value or a bag (spec.md §4.5, §4.4). It installs (and, on
// first sighting, creates) the owning ResSpec at ts.Specs[idx].
func (d *decoder) parseEntry(cur *Cursor, pkg *Package, ts *TypeSpec, idx int, cfg ConfigFlags) (*ResSpec, Value, error) {
	const entryFlagComplex = 0x0001

	if _, err := cur.U16(); err != nil { // size
		return nil, Value{}, err
	}
	flags, err := cur.U16()
	if err != nil {
		return nil, Value{}, err
	}
	keyIndex, err := cur.U32()
	if err != nil {
		return nil, Value{}, err
	}

	name := ""
	if pkg.KeyStrings != nil {
		name, _ = pkg.KeyStrings.Get(keyIndex)
	}

	spec := ts.Specs[idx]
	if spec == nil {
		id := NewResID(pkg.ID, ts.ID, uint16(idx))
		displayName, origin := ts.internName(id, name)
		spec = newResSpec(id, displayName, origin, pkg, ts)
		ts.setSpec(idx, spec)
		pkg.specsByID[id] = spec
	}

	if flags&entryFlagComplex == 0 {
		v, err := decodeTypedValue(cur, d.globals)
		if err != nil {
			return spec, Value{}, err
		}
		return spec, v, nil
	}

	parentRef, err := cur.U32()
	if err != nil {
		return spec, Value{}, err
	}
	count, err := cur.U32()
	if err != nil {
		return spec, Value{}, err
	}
	bag := Value{Kind: ValueBag, BagParent: parentRef}
	for i := uint32(0); i < count; i++ {
		attrID, err := cur.U32()
		if err != nil {
			return spec, Value{}, err
		}
		child, err := decodeTypedValue(cur, d.globals)
		if err != nil {
			return spec, Value{}, err
		}
		bag.Bag = append(bag.Bag, BagEntry{AttributeID: attrID, Value: child})
	}
	return spec, bag, nil
}

// decodeTypedValue reads a full { size, zero, type, data } value record.
// It is a thin wrapper that calls decodeValue without a Session, so both
// plain values and bag children share one code path.
func decodeTypedValue(cur *Cursor, values *StringPool) (Value, error) {
	return decodeValue(cur, values, nil)
}

// parseLibrary records a RES_TABLE_LIBRARY_TYPE chunk's entries on the
// package for later emission; they do not participate in the spec graph
// (spec.md §4.5).
func (d *decoder) parseLibrary(top *Cursor, h ChunkHeader, pkg *Package) {
	htail := top.HeaderTail(h)
	count, err := htail.U32()
	if err != nil {
		return
	}
	body := top.Body(h)
	for i := uint32(0); i < count; i++ {
		pkgID, err := body.U32()
		if err != nil {
			return
		}
		nameBuf, err := body.Bytes(256)
		if err != nil {
			return
		}
		pkg.Libraries = append(pkg.Libraries, LibraryEntry{PackageID: pkgID, Name: decodePackageName(nameBuf)})
	}
}

// parseStagedAlias records a RES_TABLE_STAGED_ALIAS_TYPE chunk's entries.
// Handling beyond recording is unspecified (spec.md §9 Open Question).
func (d *decoder) parseStagedAlias(top *Cursor, h ChunkHeader, pkg *Package) {
	body := top.Body(h)
	for body.Pos() < h.End() {
		staged, err := body.U32()
		if err != nil {
			return
		}
		finalized, err := body.U32()
		if err != nil {
			return
		}
		pkg.StagedAliases = append(pkg.StagedAliases, StagedAliasEntry{StagedID: staged, FinalizedID: finalized})
	}
}

// parseOverlayable records a RES_TABLE_OVERLAYABLE_TYPE chunk (spec.md
// §4.5).
func (d *decoder) parseOverlayable(top *Cursor, h ChunkHeader, pkg *Package) {
	htail := top.HeaderTail(h)
	nameBuf, err := htail.Bytes(256)
	if err != nil {
		return
	}
	actorBuf, err := htail.Bytes(256)
	if err != nil {
		return
	}
	pkg.Overlayables = append(pkg.Overlayables, OverlayableEntry{
		Name:     decodePackageName(nameBuf),
		ActorRef: decodePackageName(actorBuf),
	})
}

// parseOverlayablePolicy records a RES_TABLE_OVERLAYABLE_POLICY_TYPE
// chunk's resource id list (spec.md §4.5).
func (d *decoder) parseOverlayablePolicy(top *Cursor, h ChunkHeader, pkg *Package) {
	htail := top.HeaderTail(h)
	policyFlags, err := htail.U32()
	if err != nil {
		return
	}
	body := top.Body(h)
	count, err := body.U32()
	if err != nil {
		return
	}
	entry := OverlayablePolicyEntry{PolicyFlags: policyFlags}
	for i := uint32(0); i < count; i++ {
		id, err := body.U32()
		if err != nil {
			break
		}
		entry.ResIDs = append(entry.ResIDs, id)
	}
	pkg.OverlayablePolicies = append(pkg.OverlayablePolicies, entry)
}

// selectMainPackage implements spec.md §4.5's package-selection rule,
// refined by §12 to exclude exactly "android" (case-insensitively) from
// the "most specs" fallback (grounded on AndrolibResources.loadMainPkg /
// selectPkgWithMostResSpecs).
func selectMainPackage(pkgs []*Package) *Package {
	switch len(pkgs) {
	case 0:
		return nil
	case 1:
		return pkgs[0]
	case 2:
		if pkgs[0].Name == "android" || pkgs[0].Name == "com.htc" {
			return pkgs[1]
		}
		fallthrough
	default:
		return selectPkgWithMostResSpecs(pkgs)
	}
}

func selectPkgWithMostResSpecs(pkgs []*Package) *Package {
	best := pkgs[0]
	bestCount := 0
	for _, p := range pkgs {
		if !equalFoldASCII(p.Name, "android") && p.ResSpecCount() > bestCount {
			bestCount = p.ResSpecCount()
			best = p
		}
	}
	return best
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
