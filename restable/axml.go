package restable

import "fmt"

// AttributeDecoder is the contract a binary-XML (AXML) collaborator uses to
// resolve resource references while decoding AndroidManifest.xml or a
// layout (spec.md §6, out of scope for this module beyond the interface:
// "AXML parsing ... treated as a collaborator"). It is implemented here by
// tableAttributeDecoder so a real AXML decoder can be exercised against a
// live *Table without needing its own resolution logic.
type AttributeDecoder interface {
	// SetCurrentPackage selects the package whose key/type pools are
	// consulted when resolving references in binary XML (spec.md §4.6, §9:
	// modeled as explicit state on a per-session object, never ambient).
	SetCurrentPackage(pkg *Package)

	// DecodeReference resolves a raw reference id to its symbolic name, or
	// a hex-id fallback when unresolved (spec.md §6).
	DecodeReference(id uint32, isAttribute bool) DecodedReference

	// FirstError surfaces the first non-fatal error observed since the
	// decoder was created, for a caller to signal a non-zero
	// exit after an otherwise-completed lenient pass (spec.md §6, §7).
	FirstError() error
}

// DecodedReference is the result of resolving one reference id: either a
// symbolic name, or (when unresolved) just the hex fallback with Resolved
// left false.
type DecodedReference struct {
	Name        string
	IsStyleParent bool
	Resolved    bool
}

// tableAttributeDecoder is the reference AttributeDecoder implementation,
// backed directly by a *Table and its Resolver (spec.md §6).
type tableAttributeDecoder struct {
	table    *Table
	resolver *Resolver
	firstErr error
}

// NewAttributeDecoder returns an AttributeDecoder over t.
func NewAttributeDecoder(t *Table) AttributeDecoder {
	return &tableAttributeDecoder{table: t, resolver: NewResolver(t)}
}

func (d *tableAttributeDecoder) SetCurrentPackage(pkg *Package) {
	d.table.SetCurrentPackage(pkg)
}

func (d *tableAttributeDecoder) DecodeReference(id uint32, isAttribute bool) DecodedReference {
	spec, err := d.resolver.Resolve(ResID(id))
	if err != nil {
		d.recordError(err)
		sigil := "@"
		if isAttribute {
			sigil = "?"
		}
		return DecodedReference{Name: fmt.Sprintf("%s0x%08x", sigil, id), Resolved: false}
	}

	sigil := "@"
	if isAttribute {
		sigil = "?"
	}
	pkg := d.table.CurrentPackage()
	excludePackage := pkg != nil && pkg == spec.Package
	name := sigil + spec.GetFullName(excludePackage, false)

	isStyleParent := false
	if res, ok := spec.GetResource(ConfigFlags{}); ok {
		isStyleParent = res.Value.Kind == ValueBag
	}

	return DecodedReference{Name: name, IsStyleParent: isStyleParent, Resolved: true}
}

func (d *tableAttributeDecoder) FirstError() error {
	return d.firstErr
}

func (d *tableAttributeDecoder) recordError(err error) {
	if d.firstErr == nil {
		d.firstErr = err
	}
}
