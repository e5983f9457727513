// Package textdiff 是一个只找公共前缀和公共后缀的文本差分。
// 中间不同的部分整体给出一段删除加一段插入，多处分散的修改不会被拆开。
package textdiff

import "unicode/utf8"

type Type int8

const (
	Delete Type = -1
	Equal  Type = 0
	Insert Type = 1
)

func (t Type) String() string {
	switch t {
	case Delete:
		return "Delete"
	case Insert:
		return "Insert"
	}
	return "Equal"
}

type Op struct {
	Type Type
	Text string
}

// Len 按 rune 计
func (o Op) Len() int {
	return utf8.RuneCountInString(o.Text)
}

// Diff 返回把 a 变成 b 的片段序列：[Equal 前缀] [Delete] [Insert] [Equal 后缀]，空片段省略
func Diff(a, b string) []Op {
	if a == b {
		if a == "" {
			return nil
		}
		return []Op{{Type: Equal, Text: a}}
	}
	ra, rb := []rune(a), []rune(b)

	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(ra)-prefix && suffix < len(rb)-prefix &&
		ra[len(ra)-1-suffix] == rb[len(rb)-1-suffix] {
		suffix++
	}

	var out []Op
	if prefix > 0 {
		out = append(out, Op{Type: Equal, Text: string(ra[:prefix])})
	}
	if del := ra[prefix : len(ra)-suffix]; len(del) > 0 {
		out = append(out, Op{Type: Delete, Text: string(del)})
	}
	if ins := rb[prefix : len(rb)-suffix]; len(ins) > 0 {
		out = append(out, Op{Type: Insert, Text: string(ins)})
	}
	if suffix > 0 {
		out = append(out, Op{Type: Equal, Text: string(ra[len(ra)-suffix:])})
	}
	return out
}
