package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

const resourceURL = "question.json"

// Violation is the first failed constraint of a rejected instance.
type Violation struct {
	InstancePath string // JSON pointer into the record, "" for the root
	SchemaPath   string // JSON pointer into the schema document
	Message      string
}

func (v *Violation) Error() string {
	loc := v.InstancePath
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s (schema %s)", loc, v.Message, v.SchemaPath)
}

// Validator checks records against one compiled question-type schema.
// It is immutable and safe for concurrent use.
type Validator struct {
	compiled *jsonschema.Schema
}

// CheckSchemaWellFormed reports whether doc can serve as a question-type
// schema: a Draft-7 schema object whose root type, when given, admits
// objects. Boolean schemas are rejected. Failures are configuration errors.
func CheckSchemaWellFormed(doc []byte) error {
	_, err := Compile(doc)
	return err
}

// Compile checks doc and compiles it for validation.
func Compile(doc []byte) (*Validator, error) {
	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, common.NewConfigError("schema document is not valid JSON", err)
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, common.ConfigErrorf("schema document must be a JSON object, got %s", jsonKind(root))
	}
	if t, present := obj["type"]; present && !admitsObject(t) {
		return nil, common.ConfigErrorf("schema root type must be object, got %v", t)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(resourceURL, bytes.NewReader(doc)); err != nil {
		return nil, common.NewConfigError("add schema", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, common.NewConfigError("schema is not a valid Draft-7 document", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate reports whether record satisfies the schema.
func (v *Validator) Validate(record any) bool {
	return v.ValidateAndCollect(record) == nil
}

// ValidateAndCollect returns nil when record is valid, otherwise the first
// violated constraint. Records are normalized through encoding/json first so
// any marshalable Go value is accepted.
func (v *Validator) ValidateAndCollect(record any) *Violation {
	inst, err := toJSONValue(record)
	if err != nil {
		return &Violation{Message: fmt.Sprintf("record is not JSON-encodable: %v", err)}
	}
	err = v.compiled.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Violation{Message: err.Error()}
	}
	leaf := firstLeaf(ve)
	out := &Violation{
		InstancePath: leaf.InstanceLocation,
		SchemaPath:   leaf.KeywordLocation,
		Message:      leaf.Message,
	}
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		if m := reMissingProperty.FindStringSubmatch(leaf.Message); m != nil {
			out.InstancePath = leaf.InstanceLocation + "/" + m[1]
		}
	}
	return out
}

var reMissingProperty = regexp.MustCompile(`'([^']+)'`)

// firstLeaf picks the deepest cause with the smallest instance then keyword
// location, so the report does not depend on keyword evaluation order.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return ve
	}
	var best *jsonschema.ValidationError
	for _, c := range ve.Causes {
		leaf := firstLeaf(c)
		if best == nil ||
			leaf.InstanceLocation < best.InstanceLocation ||
			(leaf.InstanceLocation == best.InstanceLocation && leaf.KeywordLocation < best.KeywordLocation) {
			best = leaf
		}
	}
	return best
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func admitsObject(t any) bool {
	switch tt := t.(type) {
	case string:
		return tt == "object"
	case []any:
		for _, x := range tt {
			if s, ok := x.(string); ok && s == "object" {
				return true
			}
		}
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return "object"
	}
}
