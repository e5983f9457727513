// Package history 保存单个客户端的撤销/重做栈。
// 栈里存的是可以直接提交的 Delta：撤销栈是各次修改的逆，重做栈是撤销的逆。
// 其他人的修改落地后需要调用 Transform，让栈里的条目继续对齐最新文档。
package history

import (
	"errors"
	"sync"

	"collabDelta/backend/internal/ot/delta"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

const defaultMaxDepth = 100

type History struct {
	mu sync.Mutex

	undoStack []*delta.Delta
	redoStack []*delta.Delta

	maxDepth int
}

func New(maxDepth int) *History {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &History{maxDepth: maxDepth}
}

// Record 记录一次已经作用在 base 上的修改，清空重做栈
func (h *History) Record(change, base *delta.Delta) {
	undo := change.Invert(base)
	if len(undo.Ops()) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undoStack = h.pushLocked(h.undoStack, undo)
	h.redoStack = nil
}

func (h *History) pushLocked(stack []*delta.Delta, d *delta.Delta) []*delta.Delta {
	stack = append(stack, d)
	if excess := len(stack) - h.maxDepth; excess > 0 {
		stack = stack[excess:]
	}
	return stack
}

// Undo 弹出最近的撤销条目并返回要提交的 Delta；doc 是当前文档，用来给重做栈算逆
func (h *History) Undo(doc *delta.Delta) (*delta.Delta, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undoStack) == 0 {
		return nil, ErrNothingToUndo
	}
	change := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.redoStack = h.pushLocked(h.redoStack, change.Invert(doc))
	return change, nil
}

func (h *History) Redo(doc *delta.Delta) (*delta.Delta, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redoStack) == 0 {
		return nil, ErrNothingToRedo
	}
	change := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.undoStack = h.pushLocked(h.undoStack, change.Invert(doc))
	return change, nil
}

// Transform 把两个栈都针对一个已经落地的远端修改做变换；变成空操作的条目直接丢掉
func (h *History) Transform(remote *delta.Delta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undoStack = transformStack(h.undoStack, remote)
	h.redoStack = transformStack(h.redoStack, remote)
}

// 栈顶对应当前文档，往下每一层对应再早一步的文档，所以远端修改要逐层往下传
func transformStack(stack []*delta.Delta, remote *delta.Delta) []*delta.Delta {
	for i := len(stack) - 1; i >= 0; i-- {
		old := stack[i]
		stack[i] = remote.Transform(old, true)
		remote = old.Transform(remote, false)
		if len(stack[i].Ops()) == 0 {
			stack = append(stack[:i], stack[i+1:]...)
		}
	}
	return stack
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack) > 0
}

func (h *History) UndoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack)
}

func (h *History) RedoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undoStack = nil
	h.redoStack = nil
}
