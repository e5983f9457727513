// Package delta 实现富文本变更模型：由 insert / delete / retain 组成的有序操作序列，
// 既可以表示文档内容，也可以表示对文档的一次修改。
//
// 构造方法（Insert/Delete/Retain/Push…）在正在构造的 Delta 上原地追加并返回自身以便链式调用；
// Compose / Transform / Invert / Diff 等算法从不修改输入，总是返回新的 Delta。
//
//	doc := delta.New().
//		Insert("Gandalf", delta.Attrs("bold", true)).
//		Insert(" the ", nil).
//		Insert("Grey", delta.Attrs("color", "#ccc"))
//	change := delta.New().Retain(12, nil).Insert("White", delta.Attrs("color", "#fff")).Delete(4)
//	next := doc.Compose(change) // "Gandalf the White"
package delta

import (
	"strings"
)

// EmbedPlaceholder 是 embed 在纯文本视图里占的那个字符
const EmbedPlaceholder = '\x00'

type Delta struct {
	ops []Op
}

// New 依次 Push 传入的 op，结果已经规范化
func New(ops ...Op) *Delta {
	d := &Delta{}
	for _, op := range ops {
		d.Push(op)
	}
	return d
}

// FromText 把纯文本变成只有一个插入的文档
func FromText(text string) *Delta {
	return New().Insert(text, nil)
}

// Ops 返回 op 列表的拷贝
func (d *Delta) Ops() []Op {
	if d == nil || len(d.ops) == 0 {
		return nil
	}
	out := make([]Op, len(d.ops))
	copy(out, d.ops)
	return out
}

func (d *Delta) Clone() *Delta {
	return &Delta{ops: d.Ops()}
}

func (d *Delta) Insert(text string, attrs AttributeMap) *Delta {
	if text == "" {
		return d
	}
	return d.Push(InsertOp(text, attrs))
}

func (d *Delta) InsertEmbed(e Embed, attrs AttributeMap) *Delta {
	return d.Push(InsertEmbedOp(e, attrs))
}

func (d *Delta) Delete(n int) *Delta {
	if n <= 0 {
		return d
	}
	return d.Push(DeleteOp(n))
}

func (d *Delta) Retain(n int, attrs AttributeMap) *Delta {
	if n <= 0 {
		return d
	}
	return d.Push(RetainOp(n, attrs))
}

func (d *Delta) RetainEmbed(e Embed, attrs AttributeMap) *Delta {
	return d.Push(RetainEmbedOp(e, attrs))
}

// Push 追加一个 op，并维护规范形式：
//   - 相邻同类同属性的 op 合并（embed 不合并）
//   - 长度为 0 的 op 丢弃
//   - 末尾是 delete 时，新的 insert 放到这个 delete 前面
func (d *Delta) Push(op Op) *Delta {
	switch op.Kind {
	case KindInsert, KindDelete, KindRetain:
		if op.Len() == 0 {
			return d
		}
	}
	op.Attrs = op.Attrs.normalize()
	if op.Kind == KindDelete {
		op.Attrs = nil
	}

	index := len(d.ops)
	if index > 0 {
		last := &d.ops[index-1]
		if op.Kind == KindDelete && last.Kind == KindDelete {
			last.Count += op.Count
			return d
		}
		// 同一位置先插后删和先删后插效果一样，统一成先插入
		if last.Kind == KindDelete && op.Kind.IsInsert() {
			index--
			if index == 0 {
				d.ops = append([]Op{op}, d.ops...)
				return d
			}
			last = &d.ops[index-1]
		}
		if last.Attrs.Equal(op.Attrs) {
			switch {
			case op.Kind == KindInsert && last.Kind == KindInsert:
				last.Text += op.Text
				return d
			case op.Kind == KindRetain && last.Kind == KindRetain:
				last.Count += op.Count
				return d
			}
		}
	}
	if index == len(d.ops) {
		d.ops = append(d.ops, op)
		return d
	}
	d.ops = append(d.ops, Op{})
	copy(d.ops[index+1:], d.ops[index:])
	d.ops[index] = op
	return d
}

// Chop 去掉末尾一个不带属性的 retain
func (d *Delta) Chop() *Delta {
	if n := len(d.ops); n > 0 {
		last := d.ops[n-1]
		if last.Kind == KindRetain && len(last.Attrs) == 0 {
			d.ops = d.ops[:n-1]
		}
	}
	return d
}

// Len 是所有非 delete op 的长度之和
func (d *Delta) Len() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, op := range d.ops {
		if op.Kind != KindDelete {
			n += op.Len()
		}
	}
	return n
}

// ChangeLen 应用这个 Delta 后文档长度的净变化
func (d *Delta) ChangeLen() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, op := range d.ops {
		switch {
		case op.Kind.IsInsert():
			n += op.Len()
		case op.Kind == KindDelete:
			n -= op.Count
		}
	}
	return n
}

func (d *Delta) Equal(o *Delta) bool {
	a, b := d.Ops(), o.Ops()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// IsDocument 只含插入的 Delta 才是文档
func (d *Delta) IsDocument() bool {
	for _, op := range d.Ops() {
		if !op.Kind.IsInsert() {
			return false
		}
	}
	return true
}

// Text 文档的纯文本视图，embed 用 EmbedPlaceholder 占位，非插入 op 被忽略
func (d *Delta) Text() string {
	var sb strings.Builder
	for _, op := range d.Ops() {
		switch op.Kind {
		case KindInsert:
			sb.WriteString(op.Text)
		case KindInsertEmbed:
			sb.WriteRune(EmbedPlaceholder)
		}
	}
	return sb.String()
}

func (d *Delta) String() string {
	ops := d.Ops()
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Slice 取 [start, end) 范围内的 op；end<0 表示到结尾
func (d *Delta) Slice(start, end int) *Delta {
	if end < 0 {
		end = Infinity
	}
	out := &Delta{}
	it := NewIterator(d.Ops())
	index := 0
	for index < end && it.HasNext() {
		var next Op
		if index < start {
			next = it.Next(start - index)
		} else {
			next = it.Next(end - index)
			out.ops = append(out.ops, next)
		}
		index += next.Len()
	}
	return out
}

// Concat 把 other 接在 d 后面，衔接处按 Push 规则合并
func (d *Delta) Concat(other *Delta) *Delta {
	out := d.Clone()
	ops := other.Ops()
	if len(ops) > 0 {
		out.Push(ops[0])
		out.ops = append(out.ops, ops[1:]...)
	}
	return out
}

// Clamp 把超出 baseLen 的 retain/delete 截掉，insert 保持不动。
// 对编辑器来说越界的长度按文档实际长度处理，而不是报错。
func (d *Delta) Clamp(baseLen int) *Delta {
	out := &Delta{}
	pos := 0
	for _, op := range d.Ops() {
		if op.Kind.IsInsert() {
			out.Push(op)
			continue
		}
		room := baseLen - pos
		if room <= 0 {
			continue
		}
		n := op.Len()
		if n > room {
			op = op.slice(0, room)
			n = room
		}
		out.Push(op)
		pos += n
	}
	return out
}

// ComposeDocument 把 other 作用到文档 d 上，越界的 retain/delete 先按 d.Len() 截断。
// d 不是文档时等同于 Compose。
func (d *Delta) ComposeDocument(other *Delta) *Delta {
	if d.IsDocument() {
		other = other.Clamp(d.Len())
	}
	return d.Compose(other)
}

// InsertAt 在 pos 处插入文本的变更
func InsertAt(pos int, text string, attrs AttributeMap) *Delta {
	return New().Retain(pos, nil).Insert(text, attrs)
}

// DeleteAt 从 pos 开始删除 n 个字符的变更
func DeleteAt(pos, n int) *Delta {
	return New().Retain(pos, nil).Delete(n)
}

// FormatAt 给 [pos, pos+n) 设置属性的变更
func FormatAt(pos, n int, attrs AttributeMap) *Delta {
	return New().Retain(pos, nil).Retain(n, attrs)
}
