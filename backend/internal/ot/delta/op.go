package delta

import (
	"fmt"
	"reflect"
	"unicode/utf8"
)

type Kind string

const (
	KindInsert      Kind = "insert"
	KindInsertEmbed Kind = "insertEmbed"
	KindDelete      Kind = "delete"
	KindRetain      Kind = "retain"
	KindRetainEmbed Kind = "retainEmbed"
)

func (k Kind) IsInsert() bool { return k == KindInsert || k == KindInsertEmbed }
func (k Kind) IsRetain() bool { return k == KindRetain || k == KindRetainEmbed }
func (k Kind) IsDelete() bool { return k == KindDelete }

// Embed 是非文本内容（图片、公式……），wire 上是 {"<type>": payload}
type Embed struct {
	Type string
	Data any
}

func (e Embed) Equal(o Embed) bool {
	return e.Type == o.Type && reflect.DeepEqual(e.Data, o.Data)
}

// Op 是五种操作的带标签结构体：
//   - KindInsert:      Text, Attrs
//   - KindInsertEmbed: Embed, Attrs
//   - KindDelete:      Count
//   - KindRetain:      Count, Attrs
//   - KindRetainEmbed: Embed, Attrs
//
// 不属于该 Kind 的字段保持零值。
type Op struct {
	Kind  Kind
	Count int
	Text  string
	Embed Embed
	Attrs AttributeMap
}

func InsertOp(text string, attrs AttributeMap) Op {
	return Op{Kind: KindInsert, Text: text, Attrs: attrs.normalize()}
}

func InsertEmbedOp(e Embed, attrs AttributeMap) Op {
	return Op{Kind: KindInsertEmbed, Embed: e, Attrs: attrs.normalize()}
}

func DeleteOp(n int) Op {
	return Op{Kind: KindDelete, Count: n}
}

func RetainOp(n int, attrs AttributeMap) Op {
	return Op{Kind: KindRetain, Count: n, Attrs: attrs.normalize()}
}

func RetainEmbedOp(e Embed, attrs AttributeMap) Op {
	return Op{Kind: KindRetainEmbed, Embed: e, Attrs: attrs.normalize()}
}

// Len 文本按 rune 计数，embed 恒为 1
func (op Op) Len() int {
	switch op.Kind {
	case KindInsert:
		return utf8.RuneCountInString(op.Text)
	case KindInsertEmbed, KindRetainEmbed:
		return 1
	case KindDelete, KindRetain:
		return op.Count
	}
	mustf(false, "unknown op kind %q", op.Kind)
	return 0
}

// WithAttrs 返回替换了属性的新 Op（delete 没有属性，原样返回）
func (op Op) WithAttrs(attrs AttributeMap) Op {
	if op.Kind == KindDelete {
		return op
	}
	op.Attrs = attrs.normalize()
	return op
}

func (op Op) Equal(o Op) bool {
	if op.Kind != o.Kind || !op.Attrs.Equal(o.Attrs) {
		return false
	}
	switch op.Kind {
	case KindInsert:
		return op.Text == o.Text
	case KindInsertEmbed, KindRetainEmbed:
		return op.Embed.Equal(o.Embed)
	default:
		return op.Count == o.Count
	}
}

// sameContent 用于 diff：两个插入是否是同样的内容（忽略属性）
func (op Op) sameContent(o Op) bool {
	if op.Kind != o.Kind {
		return false
	}
	switch op.Kind {
	case KindInsert:
		return op.Text == o.Text
	case KindInsertEmbed:
		return op.Embed.Equal(o.Embed)
	}
	return false
}

func (op Op) String() string {
	var s string
	switch op.Kind {
	case KindInsert:
		s = fmt.Sprintf("insert(%q)", op.Text)
	case KindInsertEmbed:
		s = fmt.Sprintf("insert(%s:%v)", op.Embed.Type, op.Embed.Data)
	case KindDelete:
		return fmt.Sprintf("delete(%d)", op.Count)
	case KindRetain:
		s = fmt.Sprintf("retain(%d)", op.Count)
	case KindRetainEmbed:
		s = fmt.Sprintf("retain(%s:%v)", op.Embed.Type, op.Embed.Data)
	default:
		return fmt.Sprintf("op(%q)", op.Kind)
	}
	if len(op.Attrs) > 0 {
		s += op.Attrs.String()
	}
	return s
}

// slice 取 op 从 offset 开始的 n 个单位
func (op Op) slice(offset, n int) Op {
	switch op.Kind {
	case KindInsert:
		op.Text = sliceRunes(op.Text, offset, n)
	case KindDelete, KindRetain:
		op.Count = n
	}
	return op
}

func sliceRunes(s string, offset, n int) string {
	start, end := -1, len(s)
	i := 0
	for pos := range s {
		if i == offset {
			start = pos
		}
		if i == offset+n {
			end = pos
			break
		}
		i++
	}
	if start < 0 {
		return ""
	}
	return s[start:end]
}

// 内部不变量守卫：合法输入永远不会触发
func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("delta: invariant violation: "+format, args...))
	}
}
