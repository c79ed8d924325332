package schema

// DataType enumerates the column types supported by the engine.
type DataType uint8

const (
	Boolean DataType = iota
	TinyInt
	SmallInt
	Integer
	BigInt
	Float
	Double
	Char
	VarChar
	Text
	Blob
)

func (t DataType) String() string {
	switch t {
	case Boolean:
		return "BOOLEAN"
	case TinyInt:
		return "TINYINT"
	case SmallInt:
		return "SMALLINT"
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Char:
		return "CHAR"
	case VarChar:
		return "VARCHAR"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// IsStringType reports whether values of t are carried as Go strings.
func (t DataType) IsStringType() bool {
	return t == Char || t == VarChar || t == Text
}
