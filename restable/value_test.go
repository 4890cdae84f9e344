package restable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTypedDataPrimitives(t *testing.T) {
	cases := []struct {
		name     string
		typ      uint8
		data     uint32
		wantKind ValueKind
	}{
		{"null-undefined", valTypeNull, dataNullUndefined, ValueNull},
		{"null-empty", valTypeNull, dataNullEmpty, ValueNull},
		{"reference", valTypeReference, 0x7f010000, ValueReference},
		{"attribute", valTypeAttribute, 0x01010001, ValueAttribute},
		{"int-dec", valTypeIntDec, 42, ValueInt},
		{"int-hex", valTypeIntHex, 0xFF, ValueInt},
		{"bool-true", valTypeIntBool, 1, ValueBool},
		{"bool-false", valTypeIntBool, 0, ValueBool},
		{"color-argb8", valTypeIntColorARGB8, 0xFF112233, ValueColor},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, err := decodeTypedData(c.typ, c.data, nil)
			require.NoError(t, err)
			assert.Equal(t, c.wantKind, v.Kind)
		})
	}
}

func TestDecodeTypedDataColors(t *testing.T) {
	v, err := decodeTypedData(valTypeIntColorARGB8, 0xFF102030, nil)
	require.NoError(t, err)
	assert.Equal(t, "#FF102030", v.Color)

	v, err = decodeTypedData(valTypeIntColorRGB8, 0x00102030, nil)
	require.NoError(t, err)
	assert.Equal(t, "#102030", v.Color)
}

func TestSplitComplexDimension(t *testing.T) {
	// radix=0 (COMPLEX_RADIX_23p0, scale 1x), unit=0 (px), mantissa=16 -> 16px
	const unitPx = 0
	const radixShift = 4
	const mantissaShift = 8
	data := uint32(16)<<mantissaShift | uint32(0)<<radixShift | unitPx
	mantissa, unit := splitComplex(data, false)
	assert.InDelta(t, 16.0, mantissa, 0.0001)
	assert.Equal(t, "px", unit)
}

func TestSplitComplexNonTrivialRadix(t *testing.T) {
	const radixShift = 4
	const mantissaShift = 8

	cases := []struct {
		name         string
		radix        uint32
		mantissa     int32
		unit         uint32
		wantValue    float64
		wantUnitName string
	}{
		// radix=1 (COMPLEX_RADIX_16p7, scale 1/128): mantissa=128 -> 1.0dip
		{"radix1", 1, 128, 1, 1.0, "dip"},
		// radix=2 (COMPLEX_RADIX_8p15, scale 1/32768): mantissa=32768 -> 1.0sp
		{"radix2", 2, 32768, 2, 1.0, "sp"},
		// radix=3 (COMPLEX_RADIX_0p23, scale 1/8388608): mantissa=4194304 -> 0.5pt
		{"radix3", 3, 4194304, 3, 0.5, "pt"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data := uint32(c.mantissa)<<mantissaShift | c.radix<<radixShift | c.unit
			mantissa, unit := splitComplex(data, false)
			assert.InDelta(t, c.wantValue, mantissa, 0.0001)
			assert.Equal(t, c.wantUnitName, unit)
		})
	}
}

func TestDimensionRoundTripNonTrivialRadix(t *testing.T) {
	const radixShift = 4
	const mantissaShift = 8

	// radix=2 (COMPLEX_RADIX_8p15, scale 1/32768), unit=2 (sp), mantissa=49152 -> 1.5sp
	data := uint32(49152)<<mantissaShift | uint32(2)<<radixShift | 2
	decoded, err := decodeTypedData(valTypeDimension, data, nil)
	require.NoError(t, err)
	assert.Equal(t, ValueDimension, decoded.Kind)
	assert.InDelta(t, 1.5, decoded.Mantissa, 0.0001)
	assert.Equal(t, "sp", decoded.Unit)

	typ, encData, err := encodeSimpleValue(decoded)
	require.NoError(t, err)
	assert.Equal(t, uint8(valTypeDimension), typ)
	assert.Equal(t, data, encData)

	redecoded, err := decodeTypedData(typ, encData, nil)
	require.NoError(t, err)
	assert.Equal(t, decoded.Kind, redecoded.Kind)
	assert.InDelta(t, decoded.Mantissa, redecoded.Mantissa, 0.0001)
	assert.Equal(t, decoded.Unit, redecoded.Unit)
}

func TestEncodeSimpleValueRoundTrip(t *testing.T) {
	cases := []Value{
		{Kind: ValueNull, NullIsEmpty: false},
		{Kind: ValueNull, NullIsEmpty: true},
		{Kind: ValueReference, RefID: 0x7f010000},
		{Kind: ValueAttribute, RefID: 0x01010001},
		{Kind: ValueBool, Bool: true},
		{Kind: ValueBool, Bool: false},
		{Kind: ValueFloat, Float32: 3.5},
	}
	for _, v := range cases {
		typ, data, err := encodeSimpleValue(v)
		require.NoError(t, err)
		got, err := decodeTypedData(typ, data, nil)
		require.NoError(t, err)
		assert.Equal(t, v.Kind, got.Kind)
		switch v.Kind {
		case ValueNull:
			assert.Equal(t, v.NullIsEmpty, got.NullIsEmpty)
		case ValueReference, ValueAttribute:
			assert.Equal(t, v.RefID, got.RefID)
		case ValueBool:
			assert.Equal(t, v.Bool, got.Bool)
		case ValueFloat:
			assert.Equal(t, v.Float32, got.Float32)
		}
	}
}

func TestEncodeSimpleValueRejectsBag(t *testing.T) {
	_, _, err := encodeSimpleValue(Value{Kind: ValueBag})
	assert.Error(t, err)
}
