package osc

// TypeTag is the single character identifying an OSC argument's type in a type tag string.
type TypeTag byte

const (
	TypeInt32     TypeTag = 'i'
	TypeFloat32   TypeTag = 'f'
	TypeString    TypeTag = 's'
	TypeBlob      TypeTag = 'b'
	TypeInt64     TypeTag = 'h'
	TypeTimeTag   TypeTag = 't'
	TypeFloat64   TypeTag = 'd'
	TypeChar      TypeTag = 'c'
	TypeRGBA      TypeTag = 'r'
	TypeMIDI      TypeTag = 'm'
	TypeTrue      TypeTag = 'T'
	TypeFalse     TypeTag = 'F'
	TypeNil       TypeTag = 'N'
	TypeInfinitum TypeTag = 'I'
	TypeInvalid   TypeTag = 0
)

// SupportedTypeTags lists every tag this package can decode, in the order they are documented.
const SupportedTypeTags = "ifsbhtdcrmTFNI"

// argDecoder decodes one argument from data starting at off and returns the new offset.
type argDecoder func(data []byte, off int) (Argument, int, error)

type tagInfo struct {
	name   string
	decode argDecoder
}

// typeTable maps a tag byte to its decoder. Unknown tags have a nil entry.
var typeTable [128]*tagInfo

func init() {
	typeTable[TypeInt32] = &tagInfo{"int32", decodeInt32}
	typeTable[TypeFloat32] = &tagInfo{"float32", decodeFloat32}
	typeTable[TypeString] = &tagInfo{"string", decodeString}
	typeTable[TypeBlob] = &tagInfo{"blob", decodeBlob}
	typeTable[TypeInt64] = &tagInfo{"int64", decodeInt64}
	typeTable[TypeTimeTag] = &tagInfo{"timetag", decodeTimetag}
	typeTable[TypeFloat64] = &tagInfo{"float64", decodeFloat64}
	typeTable[TypeChar] = &tagInfo{"char", decodeChar}
	typeTable[TypeRGBA] = &tagInfo{"rgba", decodeRGBA}
	typeTable[TypeMIDI] = &tagInfo{"midi", decodeMIDI}
	typeTable[TypeTrue] = &tagInfo{"true", decodeConst(Bool(true))}
	typeTable[TypeFalse] = &tagInfo{"false", decodeConst(Bool(false))}
	typeTable[TypeNil] = &tagInfo{"nil", decodeConst(Nil{})}
	typeTable[TypeInfinitum] = &tagInfo{"infinitum", decodeConst(Infinitum{})}
}

func lookupTag(t TypeTag) *tagInfo {
	if t >= 128 {
		return nil
	}
	return typeTable[t]
}

// Valid reports whether t is a tag this package understands.
func (t TypeTag) Valid() bool {
	return lookupTag(t) != nil
}

// String returns the name of the type, e.g. "int32".
func (t TypeTag) String() string {
	if info := lookupTag(t); info != nil {
		return info.name
	}
	return "invalid(" + string(rune(t)) + ")"
}

// ToTypeTag returns the OSC TypeTag for the given argument.
// Returns TypeInvalid if the argument type is unsupported.
func ToTypeTag(arg interface{}) TypeTag {
	a, err := ToArgument(arg)
	if err != nil {
		return TypeInvalid
	}
	return a.TypeTag()
}

// GetTypeTag returns the OSC TypeTag string for the given slice.
func GetTypeTag(args []Argument) string {
	tt := make([]byte, 0, len(args)+1)
	tt = append(tt, ',')
	for _, a := range args {
		tt = append(tt, byte(a.TypeTag()))
	}
	return string(tt)
}
