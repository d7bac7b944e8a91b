package settings

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
	KindList
	// KindRaw holds any YAML the other kinds cannot represent (nested
	// mappings, mixed lists, tagged values). It is written back unchanged.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Value is one settings value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int64
	f    float64
	list []string
	raw  *yaml.Node
}

func Null() Value           { return Value{} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

// ValueOf converts a Go value to a Value. Unsupported types are encoded to
// YAML and kept as raw.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint16:
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case []string:
		return List(x...)
	}
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return String(fmt.Sprint(v))
	}
	return valueFromNode(&n)
}

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the bool held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns v as a float; integers convert.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsList returns a copy of the list held by v.
func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]string{}, v.list...), true
}

// Interface returns v as a plain Go value: nil, string, bool, int64,
// float64, []string, or for raw values whatever YAML decodes to.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindList:
		return append([]string{}, v.list...)
	case KindRaw:
		var out any
		if err := v.raw.Decode(&out); err != nil {
			return nil
		}
		return out
	}
	return nil
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindList:
		return "[" + strings.Join(v.list, ", ") + "]"
	case KindRaw:
		out, err := yaml.Marshal(v.raw)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
	return ""
}

// Truthy follows the loose truthiness of the settings file: non-empty
// strings and lists, non-zero numbers and true are truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.s != ""
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindList:
		return len(v.list) > 0
	case KindRaw:
		return true
	}
	return false
}

// Equal compares two values; raw values compare by their YAML rendering.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindRaw:
		return v.String() == o.String()
	}
	return v.s == o.s && v.b == o.b && v.i == o.i && v.f == o.f
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		v.list = append([]string{}, v.list...)
	case KindRaw:
		v.raw = cloneNode(v.raw)
	}
	return v
}

const (
	tagNull  = "!!null"
	tagStr   = "!!str"
	tagBool  = "!!bool"
	tagInt   = "!!int"
	tagFloat = "!!float"
)

// valueFromNode maps a YAML node onto the closest variant.
func valueFromNode(n *yaml.Node) Value {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case tagNull:
			return Null()
		case tagStr:
			return String(n.Value)
		case tagBool:
			var b bool
			if n.Decode(&b) == nil {
				return Bool(b)
			}
		case tagInt:
			var i int64
			if n.Decode(&i) == nil {
				return Int(i)
			}
		case tagFloat:
			var f float64
			if n.Decode(&f) == nil {
				return Float(f)
			}
		}
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		ok := true
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode || c.ShortTag() != tagStr {
				ok = false
				break
			}
			items = append(items, c.Value)
		}
		if ok {
			return List(items...)
		}
	}
	return Value{kind: KindRaw, raw: cloneNode(n)}
}

// node renders v as a YAML node.
func (v Value) node() *yaml.Node {
	switch v.kind {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagNull, Value: "null"}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: v.s}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagBool, Value: strconv.FormatBool(v.b)}
	case KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagInt, Value: strconv.FormatInt(v.i, 10)}
	case KindFloat:
		var n yaml.Node
		_ = n.Encode(v.f)
		return &n
	case KindList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: item})
		}
		return seq
	case KindRaw:
		return cloneNode(v.raw)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagNull, Value: "null"}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return &c
}
