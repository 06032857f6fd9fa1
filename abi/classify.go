package abi

// TypeSizeOracle resolves the byte size of a metadata type token. It is
// the "runtime type-size oracle" spec.md §4.7 step 5 calls out as an
// external collaborator — type loading is out of this core's scope
// (spec.md §1).
type TypeSizeOracle interface {
	// SizeOfValueType returns the size of a ValueType token's layout.
	SizeOfValueType(token uint32) (int, bool)
}

// ElementKind names the primitive/structural shape a signature element
// takes, enough to drive the four sizing rules of spec.md §4.7 step 5.
type ElementKind int

const (
	ElemPrimitiveI1 ElementKind = iota
	ElemPrimitiveI2
	ElemPrimitiveI4
	ElemPrimitiveI8
	ElemPrimitiveR4
	ElemPrimitiveR8
	ElemPrimitiveIntPtr
	ElemValueType
	ElemNullable
	ElemGenericStructWithFields
)

// PrimitiveWidth returns the natural byte width of a primitive element
// kind, or 0 if kind isn't primitive.
func PrimitiveWidth(kind ElementKind) int {
	switch kind {
	case ElemPrimitiveI1:
		return 1
	case ElemPrimitiveI2:
		return 2
	case ElemPrimitiveI4, ElemPrimitiveR4:
		return 4
	case ElemPrimitiveI8, ElemPrimitiveR8, ElemPrimitiveIntPtr:
		return 8
	default:
		return 0
	}
}

// AlignUp8 rounds n up to the next multiple of 8, used throughout the
// frame layout and struct-size rules.
func AlignUp8(n int) int {
	return (n + 7) &^ 7
}

// NullableSize implements the Nullable<T> rule of spec.md §4.7 step 5:
// size is 8 if sizeof(T) <= 4, else 16 (layout: bool hasValue + padding +
// T). elemSize is sizeof(T); ok is false if T isn't a resolvable
// primitive, in which case the caller must fall back to a generic-struct
// size computation.
func NullableSize(elemSize int, resolvable bool) (size int, ok bool) {
	if !resolvable {
		return 0, false
	}
	if elemSize <= 4 {
		return 8, true
	}
	return 16, true
}

// GenericStructSize implements the "generic structs with embedded
// generic fields" rule: base size plus the sum of type-argument sizes,
// aligned up to 8.
func GenericStructSize(baseSize int, typeArgSizes []int) int {
	total := baseSize
	for _, s := range typeArgSizes {
		total += s
	}
	return AlignUp8(total)
}

// SizeOfElement dispatches across the four rules of spec.md §4.7 step 5.
// For ElemValueType it consults oracle; for ElemNullable, elemSize/
// elemResolvable describe the nullable's wrapped type; for
// ElemGenericStructWithFields, baseSize/typeArgSizes describe the layout.
func SizeOfElement(kind ElementKind, oracle TypeSizeOracle, valueTypeToken uint32, elemSize int, elemResolvable bool, baseSize int, typeArgSizes []int) (int, bool) {
	switch kind {
	case ElemValueType:
		if oracle == nil {
			return 0, false
		}
		return oracle.SizeOfValueType(valueTypeToken)
	case ElemNullable:
		if size, ok := NullableSize(elemSize, elemResolvable); ok {
			return size, true
		}
		return GenericStructSize(baseSize, typeArgSizes), true
	case ElemGenericStructWithFields:
		return GenericStructSize(baseSize, typeArgSizes), true
	default:
		if w := PrimitiveWidth(kind); w > 0 {
			return w, true
		}
		return 0, false
	}
}
