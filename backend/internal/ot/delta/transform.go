package delta

// Transform 把 other 针对并发的 d 进行变换，使它可以在 d 之后应用。
// priority=true 表示 d 先发生：同一位置的插入 d 排在前面，属性冲突以 d 为准。
//
// 收敛性：a.Compose(a.Transform(b, true)) 与 b.Compose(b.Transform(a, false)) 相等。
func (d *Delta) Transform(other *Delta, priority bool) *Delta {
	thisIter := NewIterator(d.Ops())
	otherIter := NewIterator(other.Ops())
	out := &Delta{}

	for thisIter.HasNext() || otherIter.HasNext() {
		switch {
		case thisIter.PeekKind().IsInsert() && (priority || !otherIter.PeekKind().IsInsert()):
			out.Retain(thisIter.NextOp().Len(), nil)
		case otherIter.PeekKind().IsInsert():
			out.Push(otherIter.NextOp())
		default:
			n := min(thisIter.PeekLen(), otherIter.PeekLen())
			thisOp := thisIter.Next(n)
			otherOp := otherIter.Next(n)
			switch {
			case thisOp.Kind == KindDelete:
				// d 已经删掉了这段，other 对它的操作没有意义
			case otherOp.Kind == KindDelete:
				out.Push(otherOp)
			default:
				attrs := TransformAttributes(thisOp.Attrs, otherOp.Attrs, priority)
				if otherOp.Kind == KindRetainEmbed {
					out.RetainEmbed(otherOp.Embed, attrs)
				} else {
					out.Retain(n, attrs)
				}
			}
		}
	}
	return out.Chop()
}

// TransformPosition 计算光标位置 index 在 d 应用之后的新位置。
// priority=true 时，正好落在 index 的插入不会把光标往后推。
func (d *Delta) TransformPosition(index int, priority bool) int {
	it := NewIterator(d.Ops())
	offset := 0
	for it.HasNext() && offset <= index {
		n := it.PeekLen()
		kind := it.PeekKind()
		it.NextOp()
		if kind == KindDelete {
			index -= min(n, index-offset)
			continue
		}
		if kind.IsInsert() && (offset < index || !priority) {
			index += n
		}
		offset += n
	}
	return index
}
