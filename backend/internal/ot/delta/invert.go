package delta

// Invert 返回 d 的逆：base.Compose(d).Compose(d.Invert(base)) == base。
// base 必须是 d 作用之前的文档。
func (d *Delta) Invert(base *Delta) *Delta {
	out := &Delta{}
	baseIndex := 0
	for _, op := range d.Ops() {
		switch {
		case op.Kind.IsInsert():
			out.Delete(op.Len())
		case op.Kind == KindRetain && len(op.Attrs) == 0:
			out.Retain(op.Count, nil)
			baseIndex += op.Count
		default:
			n := op.Len()
			for _, baseOp := range base.Slice(baseIndex, baseIndex+n).Ops() {
				switch {
				case op.Kind == KindDelete:
					out.Push(baseOp)
				case op.Kind == KindRetainEmbed && baseOp.Kind == KindInsertEmbed:
					out.RetainEmbed(baseOp.Embed, InvertAttributes(op.Attrs, baseOp.Attrs))
				default:
					out.Retain(baseOp.Len(), InvertAttributes(op.Attrs, baseOp.Attrs))
				}
			}
			baseIndex += n
		}
	}
	return out.Chop()
}
