package restable

import "fmt"

// maxResolveDepth bounds how far the Resolver follows reference/bag-parent
// chains before giving up, per spec.md §4.7 ("depth limit ... >= 16") and
// §9's design note to return an explicit unresolved variant rather than
// loop on a cycle.
const maxResolveDepth = 16

// UnresolvedReference is returned in place of a *ResSpec when a ResID does
// not map to any known spec, or a reference chain exceeds the depth cap
// (spec.md §4.7, §7 KindUnknownResourceId).
type UnresolvedReference struct {
	ID    ResID
	Cause string
}

func (u *UnresolvedReference) Error() string {
	return fmt.Sprintf("restable: unresolved reference %s: %s", u.ID, u.Cause)
}

// Resolver is a read-only projection over a Table mapping numeric resource
// IDs and attribute references to spec/resource objects (spec.md §4.7).
// It never mutates the table it wraps.
type Resolver struct {
	table *Table
}

// NewResolver returns a Resolver over t.
func NewResolver(t *Table) *Resolver { return &Resolver{table: t} }

// Resolve maps a ResID to its owning ResSpec, or an *UnresolvedReference
// if the table has no package/spec for it.
func (r *Resolver) Resolve(id ResID) (*ResSpec, error) {
	pkg, ok := r.table.GetPackageByID(id.PackageID())
	if !ok {
		return nil, &UnresolvedReference{ID: id, Cause: "no such package"}
	}
	spec, ok := pkg.GetSpec(id)
	if !ok {
		return nil, &UnresolvedReference{ID: id, Cause: "no such resource id in package"}
	}
	return spec, nil
}

// ResolveValue follows a Value through reference/attribute indirection to
// its eventual non-reference Value, using cfg to pick which configured
// Resource to descend into at each hop. It stops and returns an
// *UnresolvedReference when a hop can't be resolved or the chain exceeds
// maxResolveDepth (spec.md §4.7, §9).
func (r *Resolver) ResolveValue(v Value, cfg ConfigFlags) (Value, error) {
	for depth := 0; depth < maxResolveDepth; depth++ {
		if v.Kind != ValueReference && v.Kind != ValueAttribute {
			return v, nil
		}
		if v.RefID == 0 {
			return v, nil // @null / ?null, not a dangling reference
		}
		spec, err := r.Resolve(ResID(v.RefID))
		if err != nil {
			return Value{}, err
		}
		res, ok := spec.GetResource(cfg)
		if !ok {
			res, ok = spec.GetResource(ConfigFlags{})
		}
		if !ok {
			return Value{}, &UnresolvedReference{ID: spec.ID, Cause: "no configured resource for reference target"}
		}
		v = res.Value
	}
	return Value{}, &UnresolvedReference{ID: ResID(v.RefID), Cause: "reference chain exceeded depth cap"}
}

// ResolveBagParent follows a bag's ParentRef chain up to maxResolveDepth
// hops, returning the specs visited in order (nearest first). A chain that
// revisits a spec stops with an *UnresolvedReference.
func (r *Resolver) ResolveBagParent(parent uint32) ([]*ResSpec, error) {
	var chain []*ResSpec
	seen := make(map[ResID]bool)
	for depth := 0; depth < maxResolveDepth && parent != 0; depth++ {
		id := ResID(parent)
		if seen[id] {
			return chain, &UnresolvedReference{ID: id, Cause: "cyclic bag parent chain"}
		}
		seen[id] = true

		spec, err := r.Resolve(id)
		if err != nil {
			return chain, err
		}
		chain = append(chain, spec)

		res, ok := spec.GetResource(ConfigFlags{})
		if !ok || res.Value.Kind != ValueBag {
			break
		}
		parent = res.Value.BagParent
	}
	return chain, nil
}
