package schema

// Alignment returns the in-tuple alignment requirement for a data type.
// Variable-length types have no intrinsic alignment and report 0.
func Alignment(t DataType) int {
	switch t {
	case Boolean, TinyInt, Char:
		return 1
	case SmallInt:
		return 2
	case Integer, Float:
		return 4
	case BigInt, Double:
		return 8
	}
	return 0
}

// AlignOffset rounds offset up to the alignment boundary of t.
func AlignOffset(offset int, t DataType) int {
	a := Alignment(t)
	if a == 0 {
		return offset
	}
	return offset + (a-offset%a)%a
}

// FixedSize returns the byte width of a fixed-length type, or 0 for
// variable-length types. CHAR is fixed only when a positive size parameter
// is given; CHAR(0) degrades to a variable-length string.
func FixedSize(t DataType, sizeParam int) int {
	switch t {
	case Boolean, TinyInt:
		return 1
	case SmallInt:
		return 2
	case Integer, Float:
		return 4
	case BigInt, Double:
		return 8
	case Char:
		if sizeParam > 0 {
			return sizeParam
		}
		return 0
	}
	return 0
}
