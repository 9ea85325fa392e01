package normalize

// ShapeKind tags how a loosely typed field arrived from the model.
type ShapeKind int

const (
	ShapeAbsent ShapeKind = iota
	ShapeSequence
	ShapeMapping
	ShapeScalar
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeAbsent:
		return "absent"
	case ShapeSequence:
		return "sequence"
	case ShapeMapping:
		return "mapping"
	case ShapeScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Shape is a decoded JSON field resolved once into one of its variants.
// Exactly one of Seq, Map or Scalar is meaningful, selected by Kind.
type Shape struct {
	Kind   ShapeKind
	Seq    []any
	Map    map[string]any
	Scalar any // string, float64, bool or nil
}

// ShapeOf classifies v as decoded by encoding/json. present=false yields ShapeAbsent.
func ShapeOf(v any, present bool) Shape {
	if !present {
		return Shape{Kind: ShapeAbsent}
	}
	switch t := v.(type) {
	case []any:
		return Shape{Kind: ShapeSequence, Seq: t}
	case map[string]any:
		return Shape{Kind: ShapeMapping, Map: t}
	default:
		return Shape{Kind: ShapeScalar, Scalar: t}
	}
}

func scalarKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	default:
		return "value"
	}
}
