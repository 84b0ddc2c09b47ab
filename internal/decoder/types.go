package decoder

// TypeDescriptor names the shape of the values a decoder produces,
// so a host can check its pipeline wiring without decoding anything.
type TypeDescriptor int

const (
	// TypeUnknown is the zero descriptor, not produced by any decoder.
	TypeUnknown TypeDescriptor = iota

	// TypeStringStringMap is a mapping from string to nullable string.
	TypeStringStringMap
)

// ProducedType is the type of every Record.
const ProducedType = TypeStringStringMap

func (t TypeDescriptor) String() string {
	switch t {
	case TypeStringStringMap:
		return "map<string,string>"
	default:
		return "unknown"
	}
}
