package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindString
	KindData
	KindAddr
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindString:
		return "string"
	case KindData:
		return "data"
	case KindAddr:
		return "addr"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a closed variant over the shapes a property can carry.
// The zero Value is KindNone.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	s    string
	data []byte
	addr netip.Addr
	list []Value
	m    map[string]Value
}

func Bool(v bool) Value       { return Value{kind: KindBool, b: v} }
func Int(v int64) Value       { return Value{kind: KindInt, i: v} }
func Uint(v uint64) Value     { return Value{kind: KindUint, u: v} }
func String(v string) Value   { return Value{kind: KindString, s: v} }
func Addr(v netip.Addr) Value { return Value{kind: KindAddr, addr: v} }
func List(vs ...Value) Value  { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

func Data(v []byte) Value {
	return Value{kind: KindData, data: append([]byte(nil), v...)}
}

func StringList(vs []string) Value {
	list := make([]Value, len(vs))
	for i, s := range vs {
		list[i] = String(s)
	}
	return List(list...)
}

func UintList(vs []uint64) Value {
	list := make([]Value, len(vs))
	for i, u := range vs {
		list[i] = Uint(u)
	}
	return List(list...)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func typeErr(want Kind, got Kind) error {
	return fmt.Errorf("%w: want %s, have %s", ErrValueType, want, got)
}

func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i != 0, nil
	case KindUint:
		return v.u != 0, nil
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return false, typeErr(KindBool, v.kind)
		}
		return b, nil
	default:
		return false, typeErr(KindBool, v.kind)
	}
}

func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindUint:
		if v.u > 1<<63-1 {
			return 0, fmt.Errorf("%w: %d", ErrValueRange, v.u)
		}
		return int64(v.u), nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 0, 64)
		if err != nil {
			return 0, typeErr(KindInt, v.kind)
		}
		return n, nil
	default:
		return 0, typeErr(KindInt, v.kind)
	}
}

func (v Value) AsUint() (uint64, error) {
	switch v.kind {
	case KindUint:
		return v.u, nil
	case KindInt:
		if v.i < 0 {
			return 0, fmt.Errorf("%w: %d", ErrValueRange, v.i)
		}
		return uint64(v.i), nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseUint(strings.TrimSpace(v.s), 0, 64)
		if err != nil {
			return 0, typeErr(KindUint, v.kind)
		}
		return n, nil
	default:
		return 0, typeErr(KindUint, v.kind)
	}
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", typeErr(KindString, v.kind)
	}
	return v.s, nil
}

// AsData accepts data directly and hex strings with an optional 0x prefix.
func (v Value) AsData() ([]byte, error) {
	switch v.kind {
	case KindData:
		return v.data, nil
	case KindString:
		s := strings.TrimPrefix(strings.TrimSpace(v.s), "0x")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, typeErr(KindData, v.kind)
		}
		return b, nil
	default:
		return nil, typeErr(KindData, v.kind)
	}
}

func (v Value) AsAddr() (netip.Addr, error) {
	switch v.kind {
	case KindAddr:
		return v.addr, nil
	case KindString:
		a, err := netip.ParseAddr(strings.TrimSpace(v.s))
		if err != nil {
			return netip.Addr{}, typeErr(KindAddr, v.kind)
		}
		return a, nil
	default:
		return netip.Addr{}, typeErr(KindAddr, v.kind)
	}
}

func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, typeErr(KindList, v.kind)
	}
	return v.list, nil
}

func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, typeErr(KindMap, v.kind)
	}
	return v.m, nil
}

// Equal compares shape and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindUint:
		return v.u == o.u
	case KindString:
		return v.s == o.s
	case KindData:
		return string(v.data) == string(o.data)
	case KindAddr:
		return v.addr == o.addr
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindString:
		return v.s
	case KindData:
		return strings.ToUpper(hex.EncodeToString(v.data))
	case KindAddr:
		return v.addr.String()
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.m[k].String()
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNone:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindUint:
		return json.Marshal(v.u)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return json.Marshal(v.String())
	}
}

// ParseText converts operator input into a Value of the requested kind.
func ParseText(kind Kind, text string) (Value, error) {
	raw := String(text)
	switch kind {
	case KindString:
		return raw, nil
	case KindBool:
		b, err := raw.AsBool()
		return Bool(b), err
	case KindInt:
		n, err := raw.AsInt()
		return Int(n), err
	case KindUint:
		n, err := raw.AsUint()
		return Uint(n), err
	case KindData:
		b, err := raw.AsData()
		return Data(b), err
	case KindAddr:
		a, err := raw.AsAddr()
		return Addr(a), err
	default:
		return Value{}, typeErr(kind, KindString)
	}
}
