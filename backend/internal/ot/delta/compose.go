package delta

// Compose 返回等价于"先应用 d 再应用 other"的单个 Delta。
// d 是文档时结果也是文档。
func (d *Delta) Compose(other *Delta) *Delta {
	thisIter := NewIterator(d.Ops())
	otherIter := NewIterator(other.Ops())
	out := &Delta{}

	// other 开头的裸 retain 原样跳过 d 前面的插入，省掉逐个切分
	if first, ok := otherIter.Peek(); ok && first.Kind == KindRetain && len(first.Attrs) == 0 {
		firstLeft := first.Count
		for thisIter.PeekKind().IsInsert() && thisIter.PeekLen() <= firstLeft {
			firstLeft -= thisIter.PeekLen()
			out.ops = append(out.ops, thisIter.NextOp())
		}
		if first.Count-firstLeft > 0 {
			otherIter.Next(first.Count - firstLeft)
		}
	}

	for thisIter.HasNext() || otherIter.HasNext() {
		switch {
		case otherIter.PeekKind().IsInsert():
			out.Push(otherIter.NextOp())
		case thisIter.PeekKind() == KindDelete:
			out.Push(thisIter.NextOp())
		default:
			n := min(thisIter.PeekLen(), otherIter.PeekLen())
			thisOp := thisIter.Next(n)
			otherOp := otherIter.Next(n)

			if otherOp.Kind.IsRetain() {
				newOp := composeRetain(thisOp, otherOp, n)
				out.Push(newOp)
				// other 已经用完，剩下的 d 原样接上即可
				if !otherIter.HasNext() && out.ops[len(out.ops)-1].Equal(newOp) {
					return out.Concat(thisIter.Rest()).Chop()
				}
			} else if otherOp.Kind == KindDelete && thisOp.Kind.IsRetain() {
				out.Push(otherOp)
			}
			// insert 遇上 delete：互相抵消，什么都不输出
		}
	}
	return out.Chop()
}

// composeRetain 处理 other 是 retain 的情况：内容取 d 一侧（d 也是 retain 时 embed 以 other 为准），属性叠加
func composeRetain(thisOp, otherOp Op, n int) Op {
	var newOp Op
	switch {
	case thisOp.Kind == KindRetain:
		if otherOp.Kind == KindRetainEmbed {
			newOp = Op{Kind: KindRetainEmbed, Embed: otherOp.Embed}
		} else {
			newOp = Op{Kind: KindRetain, Count: n}
		}
	case thisOp.Kind == KindRetainEmbed:
		newOp = Op{Kind: KindRetainEmbed, Embed: thisOp.Embed}
		if otherOp.Kind == KindRetainEmbed {
			newOp.Embed = otherOp.Embed
		}
	default:
		newOp = thisOp
	}
	newOp.Attrs = ComposeAttributes(thisOp.Attrs, otherOp.Attrs, thisOp.Kind.IsRetain())
	return newOp
}
