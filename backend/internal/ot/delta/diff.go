package delta

import (
	"errors"

	"collabDelta/backend/internal/ot/textdiff"
)

// ErrNotDocument diff 只对文档（全部是插入）有定义
var ErrNotDocument = errors.New("delta: diff called with non-document")

// Diff 返回把文档 d 变成文档 other 的变更：d.Compose(diff) 与 other 相等。
func (d *Delta) Diff(other *Delta) (*Delta, error) {
	if !d.IsDocument() || !other.IsDocument() {
		return nil, ErrNotDocument
	}
	out := &Delta{}
	if d.Equal(other) {
		return out, nil
	}

	thisIter := NewIterator(d.Ops())
	otherIter := NewIterator(other.Ops())
	for _, run := range textdiff.Diff(d.Text(), other.Text()) {
		length := run.Len()
		for length > 0 {
			var n int
			switch run.Type {
			case textdiff.Insert:
				n = min(otherIter.PeekLen(), length)
				out.Push(otherIter.Next(n))
			case textdiff.Delete:
				n = min(thisIter.PeekLen(), length)
				thisIter.Next(n)
				out.Delete(n)
			default:
				n = min(thisIter.PeekLen(), otherIter.PeekLen(), length)
				thisOp := thisIter.Next(n)
				otherOp := otherIter.Next(n)
				if thisOp.sameContent(otherOp) {
					out.Retain(n, DiffAttributes(thisOp.Attrs, otherOp.Attrs))
				} else {
					// 占位符相同但 embed 内容不同：整体替换
					out.Push(otherOp).Delete(n)
				}
			}
			length -= n
		}
	}
	return out.Chop(), nil
}
