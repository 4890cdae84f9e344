package restable

import (
	"fmt"
	"math"
)

// Value type codes (spec.md §4.4).
const (
	valTypeNull      = 0x00
	valTypeReference = 0x01
	valTypeAttribute = 0x02
	valTypeString    = 0x03
	valTypeFloat     = 0x04
	valTypeDimension = 0x05
	valTypeFraction   = 0x06
	valTypeIntDec     = 0x10
	valTypeIntHex     = 0x11
	valTypeIntBool    = 0x12
	valTypeIntColorARGB8 = 0x1C
	valTypeIntColorRGB8  = 0x1D
	valTypeIntColorARGB4 = 0x1E
	valTypeIntColorRGB4  = 0x1F
)

const (
	dataNullUndefined = 0
	dataNullEmpty     = 1
)

var dimensionUnits = [...]string{"px", "dip", "sp", "pt", "in", "mm"}
var fractionUnits = [...]string{"%", "%p"}

// ValueKind tags which variant a decoded Value holds.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueReference
	ValueAttribute
	ValueString
	ValueFloat
	ValueDimension
	ValueFraction
	ValueInt
	ValueBool
	ValueColor
	ValueBag
	ValueFile
)

// BagEntry is one (attribute_id, Value) child of a bag value (spec.md §3,
// §4.4). Order must be preserved on decode and on emission.
type BagEntry struct {
	AttributeID uint32
	Value       Value
}

// Value is the decoded typed-value variant. Exactly one field group is
// meaningful, selected by Kind, matching the design note in spec.md §9 to
// model this as a sum type with one variant per decoded shape.
type Value struct {
	Kind ValueKind

	// ValueNull
	NullIsEmpty bool

	// ValueReference / ValueAttribute: target resource id, possibly 0/unresolved.
	RefID uint32

	// ValueString / ValueFile: resolved string (ValueFile further implies
	// this names a file path inside the APK rather than in-XML content).
	Str string

	// ValueFloat
	Float32 float32

	// ValueDimension / ValueFraction
	Mantissa float64
	Unit     string // "px","dip",... or "%","%p"

	// ValueInt / ValueBool
	Int32 int32
	Bool  bool

	// ValueColor: rendered "#AARRGGBB"/"#RRGGBB" per the source width.
	Color string

	// ValueBag
	BagParent uint32
	Bag       []BagEntry

	rawType uint8
	rawData uint32
}

// RawTypeData exposes the undecoded (type, data) pair the value was
// decoded from.
func (v Value) RawTypeData() (uint8, uint32) { return v.rawType, v.rawData }

// decodeValue reads a single typed-value record: { size:u16, zero:u8,
// type:u8, data:u32 } (spec.md §4.4). values resolves STRING type data
// against the value string pool (package's key/value pool, as appropriate
// to the caller).
func decodeValue(cur *Cursor, values *StringPool, sess *Session) (Value, error) {
	start := cur.Pos()
	size, err := cur.U16()
	if err != nil {
		return Value{}, err
	}
	if _, err := cur.U8(); err != nil { // reserved "zero" byte
		return Value{}, err
	}
	typ, err := cur.U8()
	if err != nil {
		return Value{}, err
	}
	data, err := cur.U32()
	if err != nil {
		return Value{}, err
	}

	// A size > 8 is forward-compat: read and discard the trailing bytes.
	const recordHeaderAndData = 2 + 1 + 1 + 4
	if extra := int64(size) - recordHeaderAndData; extra > 0 {
		if _, err := cur.Bytes(int(extra)); err != nil {
			return Value{}, err
		}
	} else if extra < 0 {
		return Value{}, newDecodeError(KindTruncatedChunk, start, "value record smaller than its own header", nil)
	}

	return decodeTypedData(typ, data, values)
}

func decodeTypedData(typ uint8, data uint32, values *StringPool) (Value, error) {
	v := Value{rawType: typ, rawData: data}
	switch typ {
	case valTypeNull:
		v.Kind = ValueNull
		v.NullIsEmpty = data == dataNullEmpty
	case valTypeReference:
		v.Kind = ValueReference
		v.RefID = data
	case valTypeAttribute:
		v.Kind = ValueAttribute
		v.RefID = data
	case valTypeString:
		v.Kind = ValueString
		if values != nil {
			s, err := values.Get(data)
			if err != nil {
				return v, err
			}
			v.Str = s
		}
	case valTypeFloat:
		v.Kind = ValueFloat
		v.Float32 = math.Float32frombits(data)
	case valTypeDimension, valTypeFraction:
		mantissa, unit := splitComplex(data, typ == valTypeFraction)
		if typ == valTypeDimension {
			v.Kind = ValueDimension
		} else {
			v.Kind = ValueFraction
		}
		v.Mantissa = mantissa
		v.Unit = unit
	case valTypeIntDec, valTypeIntHex:
		v.Kind = ValueInt
		v.Int32 = int32(data)
	case valTypeIntBool:
		v.Kind = ValueBool
		v.Bool = data != 0
	case valTypeIntColorARGB8:
		v.Kind = ValueColor
		v.Color = fmt.Sprintf("#%08X", data)
	case valTypeIntColorRGB8:
		v.Kind = ValueColor
		v.Color = fmt.Sprintf("#%06X", data&0xFFFFFF)
	case valTypeIntColorARGB4:
		v.Kind = ValueColor
		v.Color = fmt.Sprintf("#%04X", data&0xFFFF)
	case valTypeIntColorRGB4:
		v.Kind = ValueColor
		v.Color = fmt.Sprintf("#%03X", data&0xFFF)
	default:
		v.Kind = ValueInt
		v.Int32 = int32(data)
	}
	return v, nil
}

// splitComplex decodes a packed dimension/fraction value: an 8-bit radix +
// unit selector followed by a 24-bit mantissa (spec.md §4.4).
func splitComplex(data uint32, isFraction bool) (float64, string) {
	const (
		unitMask  = 0xF
		radixMask = 0x3
		radixShift = 4
		mantissaShift = 8
	)
	unit := data & unitMask
	radix := (data >> radixShift) & radixMask
	mantissa := int32(data) >> mantissaShift

	var scale float64
	switch radix {
	case 0:
		scale = 1.0
	case 1:
		scale = 1.0 / (1 << 7)
	case 2:
		scale = 1.0 / (1 << 15)
	case 3:
		scale = 1.0 / (1 << 23)
	}

	value := float64(mantissa) * scale
	var name string
	if isFraction {
		if int(unit) < len(fractionUnits) {
			name = fractionUnits[unit]
		}
	} else if int(unit) < len(dimensionUnits) {
		name = dimensionUnits[unit]
	}
	return value, name
}

// encodeSimpleValue re-derives the (type, data) pair for a non-bag,
// non-string Value, the inverse of decodeTypedData for the primitive
// variants spec.md invariant 4 requires a round trip for.
func encodeSimpleValue(v Value) (uint8, uint32, error) {
	switch v.Kind {
	case ValueNull:
		d := uint32(dataNullUndefined)
		if v.NullIsEmpty {
			d = dataNullEmpty
		}
		return valTypeNull, d, nil
	case ValueReference:
		return valTypeReference, v.RefID, nil
	case ValueAttribute:
		return valTypeAttribute, v.RefID, nil
	case ValueFloat:
		return valTypeFloat, math.Float32bits(v.Float32), nil
	case ValueInt:
		return v.rawType, uint32(v.Int32), nil
	case ValueBool:
		d := uint32(0)
		if v.Bool {
			d = 1
		}
		return valTypeIntBool, d, nil
	case ValueColor:
		return v.rawType, v.rawData, nil
	case ValueDimension, ValueFraction:
		return v.rawType, v.rawData, nil
	default:
		return 0, 0, fmt.Errorf("value kind %d has no simple encoding", v.Kind)
	}
}
