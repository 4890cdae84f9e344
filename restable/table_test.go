package restable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPackage(t *testing.T, id uint8, name string) *Package {
	t.Helper()
	pkg := newPackage(id, name)
	return pkg
}

func TestResIDPacking(t *testing.T) {
	id := NewResID(0x7f, 0x01, 0x0002)
	assert.Equal(t, uint8(0x7f), id.PackageID())
	assert.Equal(t, uint8(0x01), id.TypeID())
	assert.Equal(t, uint16(0x0002), id.EntryID())
	assert.Equal(t, "0x7f010002", id.String())
}

func TestTypeSpecInternNameDuplicateAndDummy(t *testing.T) {
	pkg := newTestPackage(t, 0x7f, "com.example")
	ts := pkg.ensureTypeSpec(1, "string")

	id1 := NewResID(pkg.ID, ts.ID, 0)
	name1, origin1 := ts.internName(id1, "foo")
	require.Equal(t, "foo", name1)
	require.Equal(t, OriginDecoded, origin1)
	spec1 := newResSpec(id1, name1, origin1, pkg, ts)
	ts.setSpec(0, spec1)

	id2 := NewResID(pkg.ID, ts.ID, 1)
	name2, origin2 := ts.internName(id2, "foo")
	assert.Equal(t, "APKTOOL_DUPLICATE_string_0x7f010001", name2)
	assert.Equal(t, OriginSyntheticDuplicate, origin2)

	id3 := NewResID(pkg.ID, ts.ID, 2)
	name3, origin3 := ts.internName(id3, "")
	assert.Equal(t, "APKTOOL_DUMMYVAL_0x7f010002", name3)
	assert.Equal(t, OriginSyntheticDummy, origin3)
}

func TestResSpecAddResourceDuplicateRejected(t *testing.T) {
	pkg := newTestPackage(t, 0x7f, "com.example")
	ts := pkg.ensureTypeSpec(1, "string")
	id := NewResID(pkg.ID, ts.ID, 0)
	spec := newResSpec(id, "app_name", OriginDecoded, pkg, ts)

	v := Value{Kind: ValueString, Str: "Hello"}
	_, err := spec.AddResource(ConfigFlags{}, v, false)
	require.NoError(t, err)

	_, err = spec.AddResource(ConfigFlags{}, v, false)
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, KindDuplicateResource, decErr.Kind)

	// overwrite=true succeeds and replaces the value.
	v2 := Value{Kind: ValueString, Str: "Bonjour"}
	res, err := spec.AddResource(ConfigFlags{}, v2, true)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", res.Value.Str)
	assert.Len(t, spec.ListResources(), 1)
}

func TestResSpecListResourcesPreservesInsertionOrder(t *testing.T) {
	pkg := newTestPackage(t, 0x7f, "com.example")
	ts := pkg.ensureTypeSpec(1, "string")
	spec := newResSpec(NewResID(pkg.ID, ts.ID, 0), "app_name", OriginDecoded, pkg, ts)

	fr, err := ParseQualifier("fr")
	require.NoError(t, err)

	_, err = spec.AddResource(ConfigFlags{}, Value{Kind: ValueString, Str: "Hello"}, false)
	require.NoError(t, err)
	_, err = spec.AddResource(fr, Value{Kind: ValueString, Str: "Bonjour"}, false)
	require.NoError(t, err)

	got := spec.ListResources()
	require.Len(t, got, 2)
	assert.Equal(t, "Hello", got[0].Value.Str)
	assert.Equal(t, "Bonjour", got[1].Value.Str)
}

func TestGetFullNameAndDisplayName(t *testing.T) {
	pkg := newTestPackage(t, 0x7f, "com.example")
	ts := pkg.ensureTypeSpec(1, "string")
	spec := newResSpec(NewResID(pkg.ID, ts.ID, 0), `foo"bar`, OriginDecoded, pkg, ts)

	assert.Equal(t, "fooqbar", spec.DisplayName())
	assert.Equal(t, "com.example:string/fooqbar", spec.GetFullName(false, false))
	assert.Equal(t, "string/fooqbar", spec.GetFullName(true, false))
	assert.Equal(t, "com.example:fooqbar", spec.GetFullName(false, true))
}

func TestTableAddPackageDuplicateID(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.AddPackage(newTestPackage(t, 0x7f, "a"), true))
	err := table.AddPackage(newTestPackage(t, 0x7f, "b"), false)
	assert.Error(t, err)
}

func TestTableGetSpec(t *testing.T) {
	table := NewTable()
	pkg := newTestPackage(t, 0x7f, "com.example")
	ts := pkg.ensureTypeSpec(1, "string")
	id := NewResID(pkg.ID, ts.ID, 0)
	spec := newResSpec(id, "app_name", OriginDecoded, pkg, ts)
	ts.setSpec(0, spec)
	pkg.specsByID[id] = spec
	require.NoError(t, table.AddPackage(pkg, true))

	got, ok := table.GetSpec(id)
	require.True(t, ok)
	assert.Same(t, spec, got)

	_, ok = table.GetSpec(NewResID(0x01, 1, 0))
	assert.False(t, ok)
}

func TestIsPublicFlagBit(t *testing.T) {
	ts := &TypeSpec{Flags: []uint32{0, typeFlagPublic, 0x00000040}}
	assert.False(t, ts.IsPublic(0))
	assert.True(t, ts.IsPublic(1))
	// 0x40 alone (bit 6, not bit 30) must not read as public.
	assert.False(t, ts.IsPublic(2))
}
