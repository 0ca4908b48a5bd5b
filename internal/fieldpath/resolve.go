// Package fieldpath resolves dotted paths against loosely typed JSON records.
//
// A resolved value is one of three shapes: a scalar, a reference object
// carrying a display/name/value triple, or an unknown structure kept raw.
// Callers read it through Value.String which unwraps references and falls
// back to compact JSON for anything else.
package fieldpath

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the shape of a resolved Value.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindReference
	KindUnknown
)

// Reference is a relation object returned in place of a scalar.
type Reference struct {
	Display    string
	Name       string
	Value      string
	hasDisplay bool
	hasName    bool
	hasValue   bool
}

// Value is the result of resolving a path.
type Value struct {
	kind   Kind
	scalar string
	ref    Reference
	raw    any
}

// Null is the empty Value.
var Null = Value{}

// Kind returns the shape tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the path did not resolve to anything.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Reference returns the reference triple and whether v is a reference.
func (v Value) Reference() (Reference, bool) { return v.ref, v.kind == KindReference }

// Raw returns the underlying decoded value.
func (v Value) Raw() any { return v.raw }

// String returns the display form of v. References unwrap to the display
// field, then name, then value. Unknown structures serialize to compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindReference:
		switch {
		case v.ref.hasDisplay:
			return v.ref.Display
		case v.ref.hasName:
			return v.ref.Name
		default:
			return v.ref.Value
		}
	case KindUnknown:
		b, err := json.Marshal(v.raw)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Resolve walks record along the dot separated path. Any missing segment
// yields Null. Numeric segments index into arrays.
func Resolve(record map[string]any, path string) Value {
	if record == nil {
		return Null
	}
	return walk(record, path)
}

// ResolveAny is Resolve for a decoded JSON document of unknown top-level shape.
func ResolveAny(doc any, path string) Value {
	switch doc.(type) {
	case map[string]any, []any:
		return walk(doc, path)
	default:
		return Null
	}
}

func walk(cur any, path string) Value {
	if strings.TrimSpace(path) == "" {
		return Null
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return Null
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return Null
			}
			cur = node[idx]
		default:
			return Null
		}
	}
	return classify(cur)
}

var (
	displayKeys = []string{"display_value", "displayValue"}
	nameKeys    = []string{"name"}
	valueKeys   = []string{"value"}
)

func classify(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case string:
		return Value{kind: KindScalar, scalar: t, raw: t}
	case bool:
		return Value{kind: KindScalar, scalar: strconv.FormatBool(t), raw: t}
	case float64:
		return Value{kind: KindScalar, scalar: strconv.FormatFloat(t, 'f', -1, 64), raw: t}
	case json.Number:
		return Value{kind: KindScalar, scalar: t.String(), raw: t}
	case int:
		return Value{kind: KindScalar, scalar: strconv.Itoa(t), raw: t}
	case int64:
		return Value{kind: KindScalar, scalar: strconv.FormatInt(t, 10), raw: t}
	case map[string]any:
		ref := Reference{}
		ref.Display, ref.hasDisplay = firstScalar(t, displayKeys)
		ref.Name, ref.hasName = firstScalar(t, nameKeys)
		ref.Value, ref.hasValue = firstScalar(t, valueKeys)
		if ref.hasDisplay || ref.hasName || ref.hasValue {
			return Value{kind: KindReference, ref: ref, raw: t}
		}
		return Value{kind: KindUnknown, raw: t}
	default:
		return Value{kind: KindUnknown, raw: t}
	}
}

func firstScalar(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok || raw == nil {
			continue
		}
		inner := classify(raw)
		if inner.kind == KindScalar {
			return inner.scalar, true
		}
	}
	return "", false
}
