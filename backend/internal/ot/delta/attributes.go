package delta

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type valueKind uint8

const (
	// 零值就是 Null：显式"清除该格式"，和 key 不存在（没有意见）是两回事
	valueNull valueKind = iota
	valueBool
	valueNumber
	valueString
)

// Value 是属性值：Bool / Number / String / Null(显式移除)
type Value struct {
	kind valueKind
	b    bool
	n    float64
	s    string
}

func Null() Value              { return Value{kind: valueNull} }
func Bool(b bool) Value        { return Value{kind: valueBool, b: b} }
func Number(n float64) Value   { return Value{kind: valueNumber, n: n} }
func String(s string) Value    { return Value{kind: valueString, s: s} }
func (v Value) IsNull() bool   { return v.kind == valueNull }
func (v Value) IsBool() bool   { return v.kind == valueBool }
func (v Value) IsNumber() bool { return v.kind == valueNumber }
func (v Value) IsString() bool { return v.kind == valueString }

func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == valueBool }
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == valueNumber }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == valueString }

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case valueBool:
		return v.b == o.b
	case valueNumber:
		return v.n == o.n
	case valueString:
		return v.s == o.s
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case valueBool:
		return strconv.FormatBool(v.b)
	case valueNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case valueString:
		return strconv.Quote(v.s)
	}
	return "null"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueBool:
		return json.Marshal(v.b)
	case valueNumber:
		return json.Marshal(v.n)
	case valueString:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

// AttributeMap 格式 key -> 值。
// key 不存在 = 没有意见；key 对应 Null() = 主动清除。
// 所有生成 AttributeMap 的函数在结果为空时都返回 nil。
type AttributeMap map[string]Value

// Attrs 便于构造：Attrs("bold", true, "color", "#ccc", "size", 12, "link", nil)
func Attrs(kv ...any) AttributeMap {
	if len(kv)%2 != 0 {
		panic("delta.Attrs: odd number of arguments")
	}
	m := make(AttributeMap, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("delta.Attrs: key %v is not a string", kv[i]))
		}
		m[key] = valueOf(kv[i+1])
	}
	return m.normalize()
}

func valueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float64:
		return Number(t)
	}
	panic(fmt.Sprintf("delta.Attrs: unsupported value type %T", x))
}

func (m AttributeMap) normalize() AttributeMap {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Keys 按字典序返回 key，序列化和调试输出都依赖这个顺序
func (m AttributeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m AttributeMap) Equal(o AttributeMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (m AttributeMap) Clone() AttributeMap {
	if len(m) == 0 {
		return nil
	}
	out := make(AttributeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m AttributeMap) String() string {
	if len(m) == 0 {
		return "{}"
	}
	s := "{"
	for i, k := range m.Keys() {
		if i > 0 {
			s += " "
		}
		s += k + ":" + m[k].String()
	}
	return s + "}"
}

// ComposeAttributes 用 change 覆盖 base。
// keepNull=false 时丢掉结果里的 Null（作用在新插入的内容上，"移除格式"没有意义）；
// keepNull=true 时保留 Null（作用在 retain 上，下游还需要知道要清除）。
func ComposeAttributes(base, change AttributeMap, keepNull bool) AttributeMap {
	out := make(AttributeMap, len(base)+len(change))
	for k, v := range change {
		if keepNull || !v.IsNull() {
			out[k] = v
		}
	}
	for k, v := range base {
		if _, ok := change[k]; !ok {
			out[k] = v
		}
	}
	return out.normalize()
}

// DiffAttributes 返回把 a 变成 b 需要的属性修改
func DiffAttributes(a, b AttributeMap) AttributeMap {
	out := make(AttributeMap)
	for k, av := range a {
		bv, ok := b[k]
		switch {
		case !ok:
			out[k] = Null()
		case !av.Equal(bv):
			out[k] = bv
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			out[k] = bv
		}
	}
	return out.normalize()
}

// TransformAttributes 把 b 针对并发的 a 变换。
// priority=false：b 原样保留；priority=true：a 已经碰过的 key 以 a 为准，从 b 里去掉。
func TransformAttributes(a, b AttributeMap, priority bool) AttributeMap {
	if !priority {
		return b.Clone()
	}
	out := make(AttributeMap, len(b))
	for k, v := range b {
		if _, ok := a[k]; !ok {
			out[k] = v
		}
	}
	return out.normalize()
}

// InvertAttributes 返回把 attr 作用后的内容恢复成 base 的属性修改
func InvertAttributes(attr, base AttributeMap) AttributeMap {
	out := make(AttributeMap)
	for k, v := range attr {
		bv, ok := base[k]
		switch {
		case !ok:
			out[k] = Null()
		case !bv.Equal(v):
			out[k] = bv
		}
	}
	for k, bv := range base {
		if _, ok := attr[k]; !ok {
			out[k] = bv
		}
	}
	return out.normalize()
}
