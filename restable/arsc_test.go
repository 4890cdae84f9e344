package restable

import (
	"encoding/binary"
	"sort"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- hand-built ARSC fixture assembly helpers -------------------------
//
// These mirror the byte layouts arsc.go's decoder walks: a RES_TABLE_TYPE
// chunk containing a globals string pool and Package* chunks, each of
// which nests its own type/key string pools and TypeSpec/Type chunks.
// Every helper computes real offsets/sizes rather than hardcoding them,
// so the scenarios below can vary entry counts and configs freely.

func packageNameBytes(name string) []byte {
	buf := make([]byte, 256)
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		if i*2+1 >= len(buf) {
			break
		}
		buf[i*2] = byte(u)
		buf[i*2+1] = byte(u >> 8)
	}
	return buf
}

// defaultConfigBytes is a 28-byte ResTable_config with every field zero:
// the unqualified/default configuration.
func defaultConfigBytes() []byte {
	buf := putU32(nil, configSizeBase)
	buf = append(buf, make([]byte, configSizeBase-4)...)
	return buf
}

// localeConfigBytes is a 28-byte config with only the language/country
// qualifier set.
func localeConfigBytes(lang, country string) []byte {
	buf := putU32(nil, configSizeBase)
	buf = append(buf, 0, 0) // mcc
	buf = append(buf, 0, 0) // mnc
	buf = append(buf, lang[0], lang[1])
	buf = append(buf, country[0], country[1])
	buf = append(buf, make([]byte, configSizeBase-4-8)...)
	return buf
}

func typeSpecChunkBytes(id uint8, flags []uint32) []byte {
	headerSize := uint16(16)
	var buf []byte
	buf = putU16(buf, uint16(chunkTableTypeSpec))
	buf = putU16(buf, headerSize)
	buf = putU32(buf, 0) // size, patched below
	buf = append(buf, id, 0)
	buf = putU16(buf, 0)
	buf = putU32(buf, uint32(len(flags)))
	for _, f := range flags {
		buf = putU32(buf, f)
	}
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

// typeChunkDense builds a RES_TABLE_TYPE_TYPE chunk with dense (one u32
// per index) entry offsets. A nil entry marks an absent index.
func typeChunkDense(id uint8, cfg []byte, entries [][]byte) []byte {
	const fixedTail = 12 // id, flagsByte, reserved, entryCount, entriesStart
	headerSize := uint16(8 + fixedTail + len(cfg))
	offsetsLen := len(entries) * 4
	entriesStart := uint32(int(headerSize) + offsetsLen)

	offsets := make([]uint32, len(entries))
	var entryData []byte
	for i, e := range entries {
		if e == nil {
			offsets[i] = stringPoolNoEntry
			continue
		}
		offsets[i] = uint32(len(entryData))
		entryData = append(entryData, e...)
	}

	var buf []byte
	buf = putU16(buf, uint16(chunkTableType))
	buf = putU16(buf, headerSize)
	buf = putU32(buf, 0) // size, patched below
	buf = append(buf, id, 0)
	buf = putU16(buf, 0)
	buf = putU32(buf, uint32(len(entries)))
	buf = putU32(buf, entriesStart)
	buf = append(buf, cfg...)
	for _, off := range offsets {
		buf = putU32(buf, off)
	}
	buf = append(buf, entryData...)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

// typeChunkSparse builds a sparse RES_TABLE_TYPE_TYPE chunk: entryCount is
// the logical entry count (for TypeSpec alignment), present maps the only
// populated indices to their entry bytes.
func typeChunkSparse(id uint8, cfg []byte, entryCount int, present map[int][]byte) []byte {
	const fixedTail = 12
	headerSize := uint16(8 + fixedTail + len(cfg))

	indices := make([]int, 0, len(present))
	for idx := range present {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var entryData []byte
	type pair struct {
		idx     int
		halfOff uint16
	}
	pairs := make([]pair, 0, len(indices))
	for _, idx := range indices {
		e := present[idx]
		off := len(entryData)
		if off%4 != 0 {
			panic("sparse entry not 4-byte aligned")
		}
		pairs = append(pairs, pair{idx: idx, halfOff: uint16(off / 4)})
		entryData = append(entryData, e...)
	}

	offsetsLen := len(pairs) * 4
	entriesStart := uint32(int(headerSize) + offsetsLen)

	var buf []byte
	buf = putU16(buf, uint16(chunkTableType))
	buf = putU16(buf, headerSize)
	buf = putU32(buf, 0) // size, patched below
	buf = append(buf, id, typeFlagSparse)
	buf = putU16(buf, 0)
	buf = putU32(buf, uint32(entryCount))
	buf = putU32(buf, entriesStart)
	buf = append(buf, cfg...)
	for _, p := range pairs {
		buf = putU16(buf, uint16(p.idx))
		buf = putU16(buf, p.halfOff)
	}
	buf = append(buf, entryData...)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

// simpleEntry builds one non-complex entry: { size, flags, key_index } +
// a typed value record referencing the key/value pools by index.
func simpleEntry(keyIndex uint32, valType uint8, data uint32) []byte {
	var buf []byte
	buf = putU16(buf, 8) // entry header size
	buf = putU16(buf, 0) // flags: not complex
	buf = putU32(buf, keyIndex)
	buf = putU16(buf, 8) // value record size
	buf = append(buf, 0, valType)
	buf = putU32(buf, data)
	return buf
}

func packageChunkBytes(id uint8, name string, typeStrings, keyStrings, body []byte) []byte {
	headerSize := uint16(284) // 8 generic + 4 id + 256 name + 4*4 offsets
	typeStringsOff := uint32(headerSize)
	keyStringsOff := typeStringsOff + uint32(len(typeStrings))

	var buf []byte
	buf = putU16(buf, uint16(chunkTablePackage))
	buf = putU16(buf, headerSize)
	buf = putU32(buf, 0) // size, patched below
	buf = putU32(buf, uint32(id))
	buf = append(buf, packageNameBytes(name)...)
	buf = putU32(buf, typeStringsOff)
	buf = putU32(buf, 0) // lastPublicType
	buf = putU32(buf, keyStringsOff)
	buf = putU32(buf, 0) // lastPublicKey
	buf = append(buf, typeStrings...)
	buf = append(buf, keyStrings...)
	buf = append(buf, body...)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

func tableChunkBytes(globals []byte, packages [][]byte) []byte {
	headerSize := uint16(12) // 8 generic + packageCount
	var buf []byte
	buf = putU16(buf, uint16(chunkTable))
	buf = putU16(buf, headerSize)
	buf = putU32(buf, 0) // size, patched below
	buf = putU32(buf, uint32(len(packages)))
	buf = append(buf, globals...)
	for _, p := range packages {
		buf = append(buf, p...)
	}
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

func decodeFixture(t *testing.T, raw []byte, sess *Session) *DecodeResult {
	t.Helper()
	if sess == nil {
		sess = NewSession()
	}
	result, err := Decode(bytesReaderAt(raw), int64(len(raw)), sess)
	require.NoError(t, err)
	return result
}

// --- scenario 1: single-package minimal APK with one string resource --

func TestDecodeEndToEndSinglePackageString(t *testing.T) {
	globals := buildStringPoolUTF8([]string{"MyApp"})
	typeStrings := buildStringPoolUTF8([]string{"string"})
	keyStrings := buildStringPoolUTF8([]string{"app_name"})

	typeSpec := typeSpecChunkBytes(1, []uint32{0})
	typ := typeChunkDense(1, defaultConfigBytes(), [][]byte{
		simpleEntry(0, valTypeString, 0),
	})
	body := append(append([]byte{}, typeSpec...), typ...)
	pkg := packageChunkBytes(0x7f, "com.example", typeStrings, keyStrings, body)
	raw := tableChunkBytes(globals, [][]byte{pkg})

	result := decodeFixture(t, raw, nil)
	assert.False(t, result.Incomplete)

	spec, ok := result.Table.GetSpec(NewResID(0x7f, 1, 0))
	require.True(t, ok)
	assert.Equal(t, "app_name", spec.DisplayName())

	res, ok := spec.GetResource(ConfigFlags{})
	require.True(t, ok)
	assert.Equal(t, ValueString, res.Value.Kind)
	assert.Equal(t, "MyApp", res.Value.Str)
}

// --- scenario 2: multi-config string (default + fr-FR) ----------------

func TestDecodeEndToEndMultiConfigString(t *testing.T) {
	globals := buildStringPoolUTF8([]string{"Hello", "Bonjour"})
	typeStrings := buildStringPoolUTF8([]string{"string"})
	keyStrings := buildStringPoolUTF8([]string{"greeting"})

	typeSpec := typeSpecChunkBytes(1, []uint32{0})
	typDefault := typeChunkDense(1, defaultConfigBytes(), [][]byte{
		simpleEntry(0, valTypeString, 0),
	})
	typFrench := typeChunkDense(1, localeConfigBytes("fr", "FR"), [][]byte{
		simpleEntry(0, valTypeString, 1),
	})
	var body []byte
	body = append(body, typeSpec...)
	body = append(body, typDefault...)
	body = append(body, typFrench...)
	pkg := packageChunkBytes(0x7f, "com.example", typeStrings, keyStrings, body)
	raw := tableChunkBytes(globals, [][]byte{pkg})

	result := decodeFixture(t, raw, nil)
	spec, ok := result.Table.GetSpec(NewResID(0x7f, 1, 0))
	require.True(t, ok)

	resources := spec.ListResources()
	require.Len(t, resources, 2)
	assert.Equal(t, "Hello", resources[0].Value.Str)
	assert.True(t, resources[0].Config.IsDefault())
	assert.Equal(t, "Bonjour", resources[1].Value.Str)
	assert.Equal(t, "fr-rFR", resources[1].Config.Canonical())
}

// --- scenario 3: framework ("android") + app package selection --------

func TestDecodeEndToEndFrameworkAndAppPackageSelection(t *testing.T) {
	fwTypeStrings := buildStringPoolUTF8([]string{"attr"})
	fwKeyStrings := buildStringPoolUTF8([]string{"fw_attr"})
	fwTypeSpec := typeSpecChunkBytes(1, []uint32{0})
	fwType := typeChunkDense(1, defaultConfigBytes(), [][]byte{
		simpleEntry(0, valTypeIntDec, 1),
	})
	fwBody := append(append([]byte{}, fwTypeSpec...), fwType...)
	fwPkg := packageChunkBytes(1, "android", fwTypeStrings, fwKeyStrings, fwBody)

	appTypeStrings := buildStringPoolUTF8([]string{"string"})
	appKeyStrings := buildStringPoolUTF8([]string{"app_name"})
	appTypeSpec := typeSpecChunkBytes(1, []uint32{0})
	appType := typeChunkDense(1, defaultConfigBytes(), [][]byte{
		simpleEntry(0, valTypeString, 0),
	})
	appBody := append(append([]byte{}, appTypeSpec...), appType...)
	appPkg := packageChunkBytes(0x7f, "com.example", appTypeStrings, appKeyStrings, appBody)

	globals := buildStringPoolUTF8([]string{"MyApp"})
	raw := tableChunkBytes(globals, [][]byte{fwPkg, appPkg})

	result := decodeFixture(t, raw, nil)

	mains := result.Table.ListMainPackages()
	require.Len(t, mains, 1)
	assert.Equal(t, "com.example", mains[0].Name)

	_, ok := result.Table.GetPackageByID(1)
	assert.True(t, ok, "framework package is still reachable, just not main")
}

// --- scenario 4: duplicate key name synthesizes APKTOOL_DUPLICATE_* ----

func TestDecodeEndToEndDuplicateSpecName(t *testing.T) {
	globals := buildStringPoolUTF8([]string{"first", "second"})
	typeStrings := buildStringPoolUTF8([]string{"string"})
	keyStrings := buildStringPoolUTF8([]string{"dup"})

	typeSpec := typeSpecChunkBytes(1, []uint32{0, 0})
	typ := typeChunkDense(1, defaultConfigBytes(), [][]byte{
		simpleEntry(0, valTypeString, 0),
		simpleEntry(0, valTypeString, 1), // same key index -> name collision
	})
	body := append(append([]byte{}, typeSpec...), typ...)
	pkg := packageChunkBytes(0x7f, "com.example", typeStrings, keyStrings, body)
	raw := tableChunkBytes(globals, [][]byte{pkg})

	result := decodeFixture(t, raw, nil)

	first, ok := result.Table.GetSpec(NewResID(0x7f, 1, 0))
	require.True(t, ok)
	assert.Equal(t, "dup", first.DisplayName())

	second, ok := result.Table.GetSpec(NewResID(0x7f, 1, 1))
	require.True(t, ok)
	assert.Equal(t, "APKTOOL_DUPLICATE_string_0x7f010001", second.DisplayName())
}

// --- scenario 5: sparse type decode with indices {2, 7, 42} ------------

func TestDecodeEndToEndSparseTypeDecode(t *testing.T) {
	const entryCount = 43
	flags := make([]uint32, entryCount)

	globals := buildStringPoolUTF8([]string{"V2", "V7", "V42"})
	typeStrings := buildStringPoolUTF8([]string{"string"})
	keyStrings := buildStringPoolUTF8([]string{"k2", "k7", "k42"})

	typeSpec := typeSpecChunkBytes(1, flags)
	typ := typeChunkSparse(1, defaultConfigBytes(), entryCount, map[int][]byte{
		2:  simpleEntry(0, valTypeString, 0),
		7:  simpleEntry(1, valTypeString, 1),
		42: simpleEntry(2, valTypeString, 2),
	})
	body := append(append([]byte{}, typeSpec...), typ...)
	pkg := packageChunkBytes(0x7f, "com.example", typeStrings, keyStrings, body)
	raw := tableChunkBytes(globals, [][]byte{pkg})

	result := decodeFixture(t, raw, nil)

	for _, idx := range []uint16{2, 7, 42} {
		spec, ok := result.Table.GetSpec(NewResID(0x7f, 1, idx))
		require.True(t, ok, "index %d should be present", idx)
		res, ok := spec.GetResource(ConfigFlags{})
		require.True(t, ok)
		assert.Equal(t, ValueString, res.Value.Kind)
	}

	for _, idx := range []uint16{0, 1, 3, 41} {
		_, ok := result.Table.GetSpec(NewResID(0x7f, 1, idx))
		assert.False(t, ok, "index %d should be absent", idx)
	}
}
