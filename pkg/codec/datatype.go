package codec

import "fmt"

// Datatype is the value of a FIELD or PARAM datatype attribute
type Datatype int

const (
	Unknown Datatype = iota
	Boolean
	Bit
	UnsignedByte
	Short
	Int
	Long
	Float
	Double
	FloatComplex
	DoubleComplex
	Char
	UnicodeChar
)

var datatypeNames = map[Datatype]string{
	Boolean:       "boolean",
	Bit:           "bit",
	UnsignedByte:  "unsignedByte",
	Short:         "short",
	Int:           "int",
	Long:          "long",
	Float:         "float",
	Double:        "double",
	FloatComplex:  "floatComplex",
	DoubleComplex: "doubleComplex",
	Char:          "char",
	UnicodeChar:   "unicodeChar",
}

// ParseDatatype maps a datatype attribute to a Datatype. Unrecognised names give Unknown.
func ParseDatatype(name string) Datatype {
	for dt, n := range datatypeNames {
		if n == name {
			return dt
		}
	}
	return Unknown
}

func (dt Datatype) String() string {
	if n, ok := datatypeNames[dt]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(dt))
}

// ElementWidth returns the number of bytes one element occupies in a binary stream.
// Bit returns 0 since bits are packed.
func (dt Datatype) ElementWidth() int {
	switch dt {
	case Boolean, UnsignedByte, Char:
		return 1
	case Short, UnicodeChar:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	case FloatComplex:
		return 4
	case DoubleComplex:
		return 8
	default:
		return 0
	}
}

// IsCharacter reports whether the datatype holds character data.
func (dt Datatype) IsCharacter() bool {
	return dt == Char || dt == UnicodeChar
}

// IsIntegral reports whether the datatype holds integers that use a null sentinel.
func (dt Datatype) IsIntegral() bool {
	return dt == UnsignedByte || dt == Short || dt == Int || dt == Long
}
