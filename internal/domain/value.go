package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindList
)

// Value is the closed union of everything a model may emit inside a
// structured section. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  Object
	list []Value
}

// Object is an open mapping of model-emitted keys.
type Object map[string]Value

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func ObjectValue(o Object) Value { return Value{kind: KindObject, obj: o} }
func ListValue(items []Value) Value { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string member.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Obj returns the object member.
func (v Value) Obj() (Object, bool) { return v.obj, v.kind == KindObject }

// List returns the list member.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// IsBlank reports null, whitespace-only strings, and empty or all-blank containers.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindObject:
		return v.obj.AllBlank()
	case KindList:
		for _, item := range v.list {
			if !item.IsBlank() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Text renders scalars as trimmed text; containers and null render empty.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Strings collects the non-blank scalar texts of a list, or of a single scalar.
func (v Value) Strings() []string {
	switch v.kind {
	case KindList:
		out := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if t := item.Text(); t != "" {
				out = append(out, t)
			}
		}
		return out
	case KindString, KindNumber, KindBool:
		if t := v.Text(); t != "" {
			return []string{t}
		}
	}
	return []string{}
}

// Clone deep-copies containers.
func (v Value) Clone() Value {
	switch v.kind {
	case KindObject:
		return ObjectValue(v.obj.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return ListValue(items)
	default:
		return v
	}
}

// FromAny converts the output of encoding/json into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case map[string]any:
		obj := make(Object, len(t))
		for key, item := range t {
			val, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			obj[key] = val
		}
		return ObjectValue(obj), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			val, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, val)
		}
		return ListValue(items), nil
	default:
		return Value{}, fmt.Errorf("unsupported json type %T", raw)
	}
}

// Any converts back to plain Go values for encoding.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for key, item := range v.obj {
			out[key] = item.Any()
		}
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// Clone deep-copies the object. A nil object clones to nil.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for key, val := range o {
		out[key] = val.Clone()
	}
	return out
}

// AllBlank reports an empty object or one whose every value is blank.
func (o Object) AllBlank() bool {
	for _, val := range o {
		if !val.IsBlank() {
			return false
		}
	}
	return true
}

// Text returns the trimmed scalar text stored under key.
func (o Object) Text(key string) string {
	return o[key].Text()
}

// Keys returns the object keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
