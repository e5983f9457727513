package delta

import "math"

// Infinity 是迭代器耗尽后 PeekLen 的返回值：文档末尾之后可以看作无限长的 retain
const Infinity = math.MaxInt

// Iterator 在一个不可变的 op 切片上按长度前进，必要时切开当前 op，
// 让两个边界不同的序列可以同步遍历。单 goroutine 使用。
type Iterator struct {
	ops    []Op
	index  int
	offset int
}

func NewIterator(ops []Op) *Iterator {
	return &Iterator{ops: ops}
}

func (it *Iterator) HasNext() bool {
	return it.PeekLen() < Infinity
}

// PeekLen 当前 op 剩余的长度
func (it *Iterator) PeekLen() int {
	if it.index < len(it.ops) {
		return it.ops[it.index].Len() - it.offset
	}
	return Infinity
}

// PeekKind 耗尽时返回 KindRetain
func (it *Iterator) PeekKind() Kind {
	if it.index < len(it.ops) {
		return it.ops[it.index].Kind
	}
	return KindRetain
}

func (it *Iterator) PeekAttrs() AttributeMap {
	if it.index < len(it.ops) {
		return it.ops[it.index].Attrs
	}
	return nil
}

// Peek 返回当前 op（未切分）；耗尽时 ok=false
func (it *Iterator) Peek() (Op, bool) {
	if it.index < len(it.ops) {
		return it.ops[it.index], true
	}
	return Op{}, false
}

// Next 取出 min(n, PeekLen()) 长度的子 op 并前进。耗尽后返回长度为 Infinity 的裸 retain。
func (it *Iterator) Next(n int) Op {
	if it.index >= len(it.ops) {
		return RetainOp(Infinity, nil)
	}
	op := it.ops[it.index]
	offset := it.offset
	remain := op.Len() - offset
	if n >= remain {
		n = remain
		it.index++
		it.offset = 0
	} else {
		it.offset += n
	}
	if offset == 0 && n == op.Len() {
		return op
	}
	return op.slice(offset, n)
}

// NextOp 取出当前 op 剩余的全部
func (it *Iterator) NextOp() Op {
	return it.Next(Infinity)
}

// Rest 以新 Delta 返回尚未消费的 op，不移动游标
func (it *Iterator) Rest() *Delta {
	if !it.HasNext() {
		return New()
	}
	cp := *it
	out := &Delta{}
	if cp.offset > 0 {
		out.ops = append(out.ops, cp.NextOp())
	}
	out.ops = append(out.ops, cp.ops[cp.index:]...)
	return out
}
