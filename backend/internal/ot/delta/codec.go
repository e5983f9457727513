package delta

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// ErrDecode 所有解码失败都可以用 errors.Is(err, ErrDecode) 判断
var ErrDecode = errors.New("delta: decode")

// DecodeError 指出第几个 op 出错；Index 为 -1 表示整体结构不对
type DecodeError struct {
	Index  int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return "delta: decode: " + e.Reason
	}
	return fmt.Sprintf("delta: decode op %d: %s", e.Index, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// Decode 解析 wire 格式：op 数组，或者 {"ops": [...]}。结果已经规范化。
func Decode(data []byte) (*Delta, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Index: -1, Reason: "malformed json"}
	}
	root := gjson.ParseBytes(data)
	if root.IsObject() {
		root = root.Get("ops")
	}
	if !root.IsArray() {
		return nil, &DecodeError{Index: -1, Reason: "expected an array of ops"}
	}

	out := New()
	var err error
	i := 0
	root.ForEach(func(_, value gjson.Result) bool {
		var op Op
		op, err = decodeOp(i, value)
		if err != nil {
			return false
		}
		out.Push(op)
		i++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeOp(i int, v gjson.Result) (Op, error) {
	fail := func(format string, args ...any) (Op, error) {
		return Op{}, &DecodeError{Index: i, Reason: fmt.Sprintf(format, args...)}
	}
	if !v.IsObject() {
		return fail("op must be an object")
	}

	var insert, del, retain, attrs gjson.Result
	found := 0
	var unknown string
	v.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "insert":
			insert = value
			found++
		case "delete":
			del = value
			found++
		case "retain":
			retain = value
			found++
		case "attributes":
			attrs = value
		default:
			unknown = key.String()
			return false
		}
		return true
	})
	if unknown != "" {
		return fail("unknown field %q", unknown)
	}
	if found != 1 {
		return fail("op must have exactly one of insert, delete, retain")
	}

	attributes, err := decodeAttributes(attrs)
	if err != nil {
		return fail("%v", err)
	}

	switch {
	case insert.Exists():
		switch {
		case insert.Type == gjson.String:
			return InsertOp(insert.String(), attributes), nil
		case insert.IsObject():
			e, err := decodeEmbed(insert)
			if err != nil {
				return fail("insert: %v", err)
			}
			return InsertEmbedOp(e, attributes), nil
		}
		return fail("insert must be a string or an embed object")

	case del.Exists():
		if attrs.Exists() {
			return fail("delete cannot carry attributes")
		}
		n, err := decodeLength(del)
		if err != nil {
			return fail("delete: %v", err)
		}
		return DeleteOp(n), nil

	default:
		if retain.IsObject() {
			e, err := decodeEmbed(retain)
			if err != nil {
				return fail("retain: %v", err)
			}
			return RetainEmbedOp(e, attributes), nil
		}
		n, err := decodeLength(retain)
		if err != nil {
			return fail("retain: %v", err)
		}
		return RetainOp(n, attributes), nil
	}
}

func decodeLength(v gjson.Result) (int, error) {
	if v.Type != gjson.Number {
		return 0, errors.New("length must be a number")
	}
	if v.Num < 0 || v.Num != math.Trunc(v.Num) || v.Num > math.MaxInt32 {
		return 0, fmt.Errorf("invalid length %s", v.Raw)
	}
	return int(v.Int()), nil
}

// embed 对象只能有一个 key：{"image": "https://…"}
func decodeEmbed(v gjson.Result) (Embed, error) {
	var e Embed
	n := 0
	v.ForEach(func(key, value gjson.Result) bool {
		e = Embed{Type: key.String(), Data: value.Value()}
		n++
		return true
	})
	if n != 1 {
		return Embed{}, fmt.Errorf("embed must have exactly one key, got %d", n)
	}
	return e, nil
}

func decodeAttributes(v gjson.Result) (AttributeMap, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, errors.New("attributes must be an object")
	}
	out := make(AttributeMap)
	var err error
	v.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.True, gjson.False:
			out[key.String()] = Bool(value.Bool())
		case gjson.Number:
			out[key.String()] = Number(value.Num)
		case gjson.String:
			out[key.String()] = String(value.String())
		case gjson.Null:
			out[key.String()] = Null()
		default:
			err = fmt.Errorf("attribute %q must be a scalar or null", key.String())
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out.normalize(), nil
}

type wireOp struct {
	Insert     any          `json:"insert,omitempty"`
	Delete     int          `json:"delete,omitempty"`
	Retain     any          `json:"retain,omitempty"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}

func (e Embed) wire() map[string]any {
	return map[string]any{e.Type: e.Data}
}

func (op Op) MarshalJSON() ([]byte, error) {
	w := wireOp{Attributes: op.Attrs}
	switch op.Kind {
	case KindInsert:
		w.Insert = op.Text
	case KindInsertEmbed:
		w.Insert = op.Embed.wire()
	case KindDelete:
		w.Delete = op.Count
		w.Attributes = nil
	case KindRetain:
		w.Retain = op.Count
	case KindRetainEmbed:
		w.Retain = op.Embed.wire()
	default:
		return nil, fmt.Errorf("delta: unknown op kind %q", op.Kind)
	}
	return json.Marshal(w)
}

// MarshalJSON 输出 op 数组；空 Delta 是 []
func (d *Delta) MarshalJSON() ([]byte, error) {
	ops := d.Ops()
	if ops == nil {
		ops = []Op{}
	}
	return json.Marshal(ops)
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*d = *decoded
	return nil
}
