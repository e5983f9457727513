package collab

import (
	"errors"
	"fmt"
	"strings"

	"collabDelta/backend/internal/ot/delta"
)

var ErrOutOfRange = errors.New("delta exceeds document length")

type bufferKind int

const (
	//iota：在 const (...) 里从 0 开始自动递增。换句话说，这里：bufOriginal = 0, bufAdd = 1
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int // 偏移量
	length int
}

type PieceTable struct {
	// 原始文本切片
	original []rune
	// 新增文本切片，只追加不修改
	add []rune
	// 分片列表
	pieces []piece
	length int
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r, length: len(r)}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	return pt.length
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		sb.WriteString(string(pt.source(p)[p.offset : p.offset+p.length]))
	}
	return sb.String()
}

func (pt *PieceTable) source(p piece) []rune {
	if p.buf == bufAdd {
		return pt.add
	}
	return pt.original
}

// Apply 把 delta 作用到文本上。先整体校验长度，越界时不做任何修改。
//
// retain: 沿 piece 列表向前走，对应“移动 pos”；
// insert: 在当前 pos 插入（embed 插入一个占位符）；
// delete: 在当前 pos 删除（通过拆分/移除 piece）。
func (pt *PieceTable) Apply(d *delta.Delta) error {
	ops := d.Ops()
	if err := pt.check(ops); err != nil {
		return err
	}
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case delta.KindRetain, delta.KindRetainEmbed:
			pos += op.Len()
		case delta.KindInsert:
			pt.insert(pos, []rune(op.Text))
			pos += op.Len()
		case delta.KindInsertEmbed:
			pt.insert(pos, []rune{delta.EmbedPlaceholder})
			pos++
		case delta.KindDelete:
			pt.delete(pos, op.Count)
		}
	}
	return nil
}

func (pt *PieceTable) check(ops []delta.Op) error {
	pos, n := 0, pt.length
	for _, op := range ops {
		switch {
		case op.Kind.IsInsert():
			pos += op.Len()
			n += op.Len()
		case op.Kind == delta.KindDelete:
			if pos+op.Count > n {
				return fmt.Errorf("%w: delete %d at %d, length %d", ErrOutOfRange, op.Count, pos, n)
			}
			n -= op.Count
		default:
			pos += op.Len()
			if pos > n {
				return fmt.Errorf("%w: retain to %d, length %d", ErrOutOfRange, pos, n)
			}
		}
	}
	return nil
}

func (pt *PieceTable) insert(pos int, text []rune) {
	if len(text) == 0 {
		return
	}
	start := len(pt.add)
	pt.add = append(pt.add, text...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(text)}

	idx, offset := pt.locate(pos)
	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		if offset > 0 {
			newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: offset})
		}
		newPieces = append(newPieces, newPiece)
		newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset})
		newPieces = append(newPieces, pt.pieces[idx+1:]...)
	} else {
		newPieces = append(newPieces, newPiece)
	}
	pt.pieces = newPieces
	pt.length += len(text)
}

func (pt *PieceTable) delete(pos, count int) {
	// 要删的剩余长度
	remain := count
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		// 本轮实际要删多少
		take := min(remain, cur.length-offset)
		leftLen := offset
		rightLen := cur.length - offset - take

		// 把 cur 替换成 左 / 右 两段（可能为空）
		repl := make([]piece, 0, 2)
		if leftLen > 0 {
			repl = append(repl, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
		}
		if rightLen > 0 {
			repl = append(repl, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
		}
		newPieces := make([]piece, 0, len(pt.pieces)+1)
		newPieces = append(newPieces, pt.pieces[:idx]...)
		newPieces = append(newPieces, repl...)
		newPieces = append(newPieces, pt.pieces[idx+1:]...)
		pt.pieces = newPieces

		// 左段保留时下一个要删的 piece 在它后面
		if leftLen > 0 {
			idx++
		}
		offset = 0
		remain -= take
		pt.length -= take
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
