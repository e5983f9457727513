package ws

import (
	"context"
	"sync"

	"collabDelta/backend/internal/cache"
	"collabDelta/backend/internal/collab"
)

type Hub struct {
	// 在线状态写在 redis 里，多实例共享
	presence cache.PresenceCache
	cursors  CursorStore
	// 保护 rooms，加入/离开房间、广播时都会先加锁
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
	// 同一文档的提交和广播串行执行，保证对端按版本顺序收到
	docLocks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// CursorStore 保存用户光标，文档修改后由协作引擎负责移动
type CursorStore interface {
	SetCursor(ctx context.Context, docID string, userID uint64, cur cache.Cursor) error
}

func NewHub(p cache.PresenceCache, cursors CursorStore) *Hub {
	return &Hub{
		presence: p,
		cursors:  cursors,
		rooms:    make(map[string]map[*Conn]struct{}),
		docLocks: make(map[string]*docLock),
	}
}

// lockDoc 加上文档级的锁，返回解锁函数；没人持有时回收
func (h *Hub) lockDoc(docID string) func() {
	h.mu.Lock()
	l := h.docLocks[docID]
	if l == nil {
		l = &docLock{}
		h.docLocks[docID] = l
	}
	l.refs++
	h.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.docLocks, docID)
		}
		h.mu.Unlock()
	}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 一个用户可开多个标签页/设备（多连接），广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// 复制一份连接列表，发送时不持锁
func (h *Hub) members(docID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) BroadcastPresence(docID string, members []PresenceMember) {
	msg := ServerMessage{Type: TypePresence, DocID: docID, Members: members}
	for _, c := range h.members(docID) {
		c.SendMessage_Enqueue(msg)
	}
}

// BroadcastCursor 光标只发给房间里的其他连接
func (h *Hub) BroadcastCursor(docID string, from *Conn, cur cache.Cursor) {
	msg := ServerMessage{Type: TypeCursor, DocID: docID, UserID: from.userID, Range: &cur}
	for _, c := range h.members(docID) {
		if c != from {
			c.SendMessage_Enqueue(msg)
		}
	}
}

// BroadcastAppliedOp 把已落地的修改推给房间；except 为 nil 时连提交者也会收到（服务端撤销/重做）
func (h *Hub) BroadcastAppliedOp(docID string, except *Conn, op collab.AppliedOp, clientSeq uint64) {
	msg := OpBroadcastMessage{
		Type:      TypeOpBroadcast,
		DocID:     docID,
		Revision:  op.Revision,
		AuthorID:  op.AuthorID,
		ClientId:  op.ClientID,
		ClientSeq: clientSeq,
		Ops:       op.Ops,
		AppliedAt: op.AppliedAt,
	}
	for _, c := range h.members(docID) {
		if c != except {
			c.SendMessage_Enqueue(msg)
		}
	}
}
