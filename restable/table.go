package restable

import (
	"fmt"
	"sort"
	"strings"
)

// ResID is the 32-bit opaque resource identifier: package_id(8) |
// type_id(8) | entry_id(16) (spec.md §3).
type ResID uint32

// NewResID packs a package/type/entry triple into a ResID.
func NewResID(pkg, typ uint8, entry uint16) ResID {
	return ResID(uint32(pkg)<<24 | uint32(typ)<<16 | uint32(entry))
}

// PackageID returns the 8-bit package id.
func (id ResID) PackageID() uint8 { return uint8(id >> 24) }

// TypeID returns the 8-bit type id.
func (id ResID) TypeID() uint8 { return uint8(id >> 16) }

// EntryID returns the 16-bit entry id.
func (id ResID) EntryID() uint16 { return uint16(id) }

// String renders the id the way apktool's public.xml does: "0x7f010000".
func (id ResID) String() string { return fmt.Sprintf("0x%08x", uint32(id)) }

// Origin records how a ResSpec's name came to be, separating the display
// string from the decoder's control signal (spec.md §9 design note).
type Origin int

const (
	OriginDecoded Origin = iota
	OriginSyntheticDummy
	OriginSyntheticDuplicate
)

// Table is the in-memory resource table: packages keyed by id, plus the
// insertion-ordered "main" package set emitters walk (spec.md §3, §4.6).
type Table struct {
	packagesByID   map[uint8]*Package
	packagesByName map[string]*Package
	order          []*Package

	mainByID map[uint8]*Package
	mainList []*Package

	// currentPackage is the mutable slot used by attribute decoders during
	// manifest/AXML decoding (spec.md §6). It is scoped to this Table, never
	// process-global (spec.md §9 design note).
	currentPackage *Package
}

// NewTable returns an empty resource table.
func NewTable() *Table {
	return &Table{
		packagesByID:   make(map[uint8]*Package),
		packagesByName: make(map[string]*Package),
		mainByID:       make(map[uint8]*Package),
	}
}

// AddPackage inserts pkg, recording it in the main set when isMain is true.
// Invariant: pkg.ID is unique within the table.
func (t *Table) AddPackage(pkg *Package, isMain bool) error {
	if _, exists := t.packagesByID[pkg.ID]; exists {
		return fmt.Errorf("restable: duplicate package id %d (%q)", pkg.ID, pkg.Name)
	}
	pkg.table = t
	t.packagesByID[pkg.ID] = pkg
	t.packagesByName[pkg.Name] = pkg
	t.order = append(t.order, pkg)
	if isMain {
		t.mainByID[pkg.ID] = pkg
		t.mainList = append(t.mainList, pkg)
	}
	return nil
}

// ListMainPackages returns the main packages in insertion order.
func (t *Table) ListMainPackages() []*Package { return t.mainList }

// ListPackages returns every package in insertion order.
func (t *Table) ListPackages() []*Package { return t.order }

// GetPackageByID looks up a package by its 8-bit id.
func (t *Table) GetPackageByID(id uint8) (*Package, bool) {
	p, ok := t.packagesByID[id]
	return p, ok
}

// GetPackageByName looks up a package by its declared name.
func (t *Table) GetPackageByName(name string) (*Package, bool) {
	p, ok := t.packagesByName[name]
	return p, ok
}

// SetCurrentPackage selects the package whose key/type pools are consulted
// when resolving references during an AXML decode pass (spec.md §6).
func (t *Table) SetCurrentPackage(pkg *Package) { t.currentPackage = pkg }

// CurrentPackage returns the package set by SetCurrentPackage, or nil.
func (t *Table) CurrentPackage() *Package { return t.currentPackage }

// GetSpec resolves a ResID to its owning ResSpec, if the table has it.
func (t *Table) GetSpec(id ResID) (*ResSpec, bool) {
	pkg, ok := t.packagesByID[id.PackageID()]
	if !ok {
		return nil, false
	}
	return pkg.GetSpec(id)
}

// Package is a namespace of resources identified by an 8-bit id (spec.md
// §3). Invariant: id unique within its table; type_specs[t].id == t; every
// spec's type pointer matches its enclosing type-spec.
type Package struct {
	ID   uint8
	Name string

	KeyStrings  *StringPool
	TypeStrings *StringPool

	typeSpecsByID map[uint8]*TypeSpec
	typeOrder     []uint8

	specsByID map[ResID]*ResSpec

	// Libraries/StagedAliases/Overlayables/OverlayablePolicies are recorded
	// verbatim for forward compatibility (spec.md §4.5) but do not
	// participate in the spec graph.
	Libraries           []LibraryEntry
	StagedAliases       []StagedAliasEntry
	Overlayables        []OverlayableEntry
	OverlayablePolicies []OverlayablePolicyEntry

	table *Table
}

// LibraryEntry is one (package_id, package_name) pair from a Library chunk.
type LibraryEntry struct {
	PackageID uint32
	Name      string
}

// StagedAliasEntry is one (staged_id, finalized_id) pair from a StagedAlias
// chunk; the source's handling beyond recording it is unspecified (spec.md
// §9 Open Question), so it is kept as a recorded-but-unused artifact.
type StagedAliasEntry struct {
	StagedID    uint32
	FinalizedID uint32
}

// OverlayableEntry names one <overlayable> declaration.
type OverlayableEntry struct {
	Name       string
	ActorRef   string
}

// OverlayablePolicyEntry lists the resource ids governed by one overlayable
// policy chunk.
type OverlayablePolicyEntry struct {
	PolicyFlags uint32
	ResIDs      []uint32
}

func newPackage(id uint8, name string) *Package {
	return &Package{
		ID:            id,
		Name:          name,
		typeSpecsByID: make(map[uint8]*TypeSpec),
		specsByID:     make(map[ResID]*ResSpec),
	}
}

// ResSpecCount mirrors apktool's ResPackage.getResSpecCount(), used by main
// package selection (spec.md §4.5).
func (p *Package) ResSpecCount() int { return len(p.specsByID) }

// ListTypeSpecs returns this package's type-specs in the order their
// TypeSpec chunks were first encountered (spec.md §5 ordering guarantee).
func (p *Package) ListTypeSpecs() []*TypeSpec {
	out := make([]*TypeSpec, 0, len(p.typeOrder))
	for _, id := range p.typeOrder {
		out = append(out, p.typeSpecsByID[id])
	}
	return out
}

// GetTypeSpec looks up a type-spec by its 8-bit type id.
func (p *Package) GetTypeSpec(id uint8) (*TypeSpec, bool) {
	ts, ok := p.typeSpecsByID[id]
	return ts, ok
}

func (p *Package) ensureTypeSpec(id uint8, name string) *TypeSpec {
	if ts, ok := p.typeSpecsByID[id]; ok {
		return ts
	}
	ts := &TypeSpec{ID: id, Name: name, pkg: p}
	p.typeSpecsByID[id] = ts
	p.typeOrder = append(p.typeOrder, id)
	return ts
}

// GetSpec looks up a spec by its full ResID within this package.
func (p *Package) GetSpec(id ResID) (*ResSpec, bool) {
	s, ok := p.specsByID[id]
	return s, ok
}

// GetSpecByName looks up a spec of the given type by its decoded (or
// synthesized) name.
func (p *Package) GetSpecByName(typeName, name string) (*ResSpec, bool) {
	for _, id := range p.typeOrder {
		ts := p.typeSpecsByID[id]
		if ts.Name != typeName {
			continue
		}
		return ts.GetSpecByName(name)
	}
	return nil, false
}

// ListResSpecs returns every spec in this package across all type-specs,
// in type-spec-then-entry order, mirroring apktool's ResPackage.listResSpecs
// (used by the public.xml emitter's input before it re-sorts by id).
func (p *Package) ListResSpecs() []*ResSpec {
	var out []*ResSpec
	for _, id := range p.typeOrder {
		ts := p.typeSpecsByID[id]
		for _, s := range ts.Specs {
			if s != nil {
				out = append(out, s)
			}
		}
	}
	return out
}

// TypeSpec is all specs sharing a resource type within a package (spec.md
// §3). entry_count is authoritative; indices outside it are invalid.
type TypeSpec struct {
	ID    uint8
	Name  string
	Flags []uint32 // per-entry configuration-change mask bits, len == EntryCount
	Specs []*ResSpec

	pkg        *Package
	byName     map[string]*ResSpec
	dupCounter int
}

// EntryCount is the authoritative entry count (len(Specs) == len(Flags)).
func (ts *TypeSpec) EntryCount() int { return len(ts.Specs) }

// GetSpecByName looks up a spec by its decoded (or synthesized) name.
func (ts *TypeSpec) GetSpecByName(name string) (*ResSpec, bool) {
	s, ok := ts.byName[name]
	return s, ok
}

// getResSpecUnsafe mirrors apktool's ResTypeSpec.getResSpecUnsafe: a lookup
// that returns nil instead of an error, used only to detect name collisions
// while decoding (spec.md §4.5).
func (ts *TypeSpec) getResSpecUnsafe(name string) *ResSpec {
	return ts.byName[name]
}

// mergeFlags merges a second TypeSpec chunk's flags for the same id into
// this one, growing the entry count if the new chunk declares more entries
// (spec.md §4.5: "subsequent TypeSpec chunks for the same id merge flags").
func (ts *TypeSpec) mergeFlags(flags []uint32) {
	if len(flags) > len(ts.Flags) {
		grown := make([]uint32, len(flags))
		copy(grown, ts.Flags)
		ts.Flags = grown
		for len(ts.Specs) < len(flags) {
			ts.Specs = append(ts.Specs, nil)
		}
	}
	for i, f := range flags {
		ts.Flags[i] |= f
	}
}

// ensureEntryCount grows Flags/Specs to n entries, used by Type chunks
// (including TypeSpecs created lazily in lenient mode) and by setSpec.
func (ts *TypeSpec) ensureEntryCount(n int) {
	for len(ts.Flags) < n {
		ts.Flags = append(ts.Flags, 0)
	}
	for len(ts.Specs) < n {
		ts.Specs = append(ts.Specs, nil)
	}
}

// typeFlagPublic is the entry-flag bit the Publicizer toggles: byte 3 of
// the little-endian u32 flags word ORed with 0x40 is bit 30, i.e.
// 0x40000000 (spec.md §4.8, §GLOSSARY "Publicize").
const typeFlagPublic = 0x40000000

// IsPublic reports whether entry idx's config-change mask has the public
// bit set.
func (ts *TypeSpec) IsPublic(idx int) bool {
	if idx < 0 || idx >= len(ts.Flags) {
		return false
	}
	return ts.Flags[idx]&typeFlagPublic != 0
}

// internName resolves a spec's decoded name against duplicate/empty-name
// rules, and returns (displayName, origin) per spec.md §4.5's tie-breaks:
// duplicate names get "APKTOOL_DUPLICATE_<type>_<hexid>"; empty names get
// "APKTOOL_DUMMYVAL_<hexid>" (grounded on ResResSpec's Java constructor).
func (ts *TypeSpec) internName(id ResID, name string) (string, Origin) {
	if existing := ts.getResSpecUnsafe(name); existing != nil {
		return fmt.Sprintf("APKTOOL_DUPLICATE_%s_%s", ts.Name, id.String()), OriginSyntheticDuplicate
	}
	if name == "" {
		return fmt.Sprintf("APKTOOL_DUMMYVAL_%s", id.String()), OriginSyntheticDummy
	}
	return name, OriginDecoded
}

// setSpec installs spec at entry index idx, registering it by name for
// future collision checks. idx must be < ts.EntryCount().
func (ts *TypeSpec) setSpec(idx int, spec *ResSpec) {
	if ts.byName == nil {
		ts.byName = make(map[string]*ResSpec)
	}
	ts.ensureEntryCount(idx + 1)
	ts.Specs[idx] = spec
	ts.byName[spec.Name] = spec
}

// ResSpec is the logical identity of a named resource (spec.md §3).
// Invariant: at most one Resource per distinct ConfigFlags key unless the
// caller explicitly opts into overwrite; Name is non-empty after decode.
type ResSpec struct {
	ID      ResID
	Name    string
	Origin  Origin
	Package *Package
	Type    *TypeSpec

	configOrder []configKey
	configured  map[configKey]*Resource
}

func newResSpec(id ResID, name string, origin Origin, pkg *Package, typ *TypeSpec) *ResSpec {
	return &ResSpec{
		ID:         id,
		Name:       name,
		Origin:     origin,
		Package:    pkg,
		Type:       typ,
		configured: make(map[configKey]*Resource),
	}
}

// DisplayName applies the "\"" -> "q" display-only transform (spec.md
// Open Questions resolves this as display-only; grounded on
// ResResSpec.getName()'s StringUtils.replace call).
func (s *ResSpec) DisplayName() string {
	return strings.ReplaceAll(s.Name, "\"", "q")
}

// IsDummyResSpec reports whether this spec's name was synthesized for an
// anonymous entry, distinct from the duplicate-name case (spec.md §12,
// grounded on ResResSpec.isDummyResSpec()).
func (s *ResSpec) IsDummyResSpec() bool { return s.Origin == OriginSyntheticDummy }

// IsDuplicate reports whether this spec's name was synthesized because
// another spec in the same type already claimed it.
func (s *ResSpec) IsDuplicate() bool { return s.Origin == OriginSyntheticDuplicate }

// GetFullName renders "pkg:type/name", optionally excluding the package
// and/or type segment, matching ResResSpec.getFullName (spec.md §12).
func (s *ResSpec) GetFullName(excludePackage, excludeType bool) string {
	var b strings.Builder
	if !excludePackage {
		b.WriteString(s.Package.Name)
		b.WriteByte(':')
	}
	if !excludeType {
		b.WriteString(s.Type.Name)
		b.WriteByte('/')
	}
	b.WriteString(s.DisplayName())
	return b.String()
}

// AddResource associates a Value with a configuration, returning
// DuplicateResource if one is already present and overwrite is false
// (spec.md §3, §7).
func (s *ResSpec) AddResource(cfg ConfigFlags, v Value, overwrite bool) (*Resource, error) {
	key := cfg.Key()
	if _, exists := s.configured[key]; exists && !overwrite {
		return nil, newDecodeError(KindDuplicateResource, 0, fmt.Sprintf("resource: spec=%s, config=%s", s.GetFullName(false, false), cfg.Canonical()), nil)
	}
	res := &Resource{Spec: s, Config: cfg, Value: v}
	if _, exists := s.configured[key]; !exists {
		s.configOrder = append(s.configOrder, key)
	}
	s.configured[key] = res
	return res, nil
}

// GetResource looks up the resource for an exact configuration.
func (s *ResSpec) GetResource(cfg ConfigFlags) (*Resource, bool) {
	r, ok := s.configured[cfg.Key()]
	return r, ok
}

// HasDefaultResource reports whether the unqualified configuration has a
// value.
func (s *ResSpec) HasDefaultResource() bool {
	_, ok := s.GetResource(ConfigFlags{})
	return ok
}

// ListResources returns every configured Resource in insertion order
// (spec.md §5: "per-spec configuration map preserves insertion order").
func (s *ResSpec) ListResources() []*Resource {
	out := make([]*Resource, 0, len(s.configOrder))
	for _, k := range s.configOrder {
		out = append(out, s.configured[k])
	}
	return out
}

// Resource is one configured value of a ResSpec (spec.md §3).
type Resource struct {
	Spec   *ResSpec
	Config ConfigFlags
	Value  Value
}

// ValuesFile is the synthesized grouping of all in-XML (non-file) resources
// of a given type within a given configuration, used by the values emitter
// (spec.md §3, §4.9).
type ValuesFile struct {
	Type      string
	Config    ConfigFlags
	Resources []*Resource
}

// sortSpecsByID sorts specs ascending by numeric resource id, for
// public.xml emission (spec.md §4.9).
func sortSpecsByID(specs []*ResSpec) {
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
}
