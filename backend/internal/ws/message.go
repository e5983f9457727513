package ws

import (
	"encoding/json"
	"time"

	"collabDelta/backend/internal/cache"
	"collabDelta/backend/internal/ot/delta"
)

// 客户端消息类型
const (
	TypeHeartbeat           = "heartbeat"
	TypeCreateDocument      = "createDocument"
	TypeJoinDocument        = "joinDocument"
	TypeShowAliveMembers    = "show_alive_members"
	TypeOpSubmit            = "op_submit"
	TypeUndo                = "undo"
	TypeRedo                = "redo"
	TypeCursor              = "cursor"
	TypeSaveDocument        = "saveDocument"
	TypeLoadDocumentContent = "loadDocumentContent"
)

// 服务端消息类型
const (
	TypeWelcome     = "welcome"
	TypeError       = "error"
	TypeFeedback    = "feedback"
	TypePresence    = "presence"
	TypeOpApplied   = "op_applied"
	TypeOpBroadcast = "op_broadcast"
	TypeIgnored     = "ignored"
)

type ClientMessage struct {
	Type         string        `json:"type"`
	DocID        string        `json:"docId"`
	DocTitle     string        `json:"docTitle"`
	Range        *cache.Cursor `json:"range,omitempty"`
	BaseRevision uint64        `json:"baseRevision"`
	ClientId     string        `json:"clientId"`
	ClientSeq    uint64        `json:"clientSeq"`
	// 延迟解码，解码失败时回 error 而不是断开连接
	Ops     json.RawMessage `json:"ops,omitempty"`
	Content string          `json:"content,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type     string           `json:"type"`
	UserID   uint64           `json:"userId,omitempty"`
	DocID    string           `json:"docId,omitempty"`
	Revision uint64           `json:"revision,omitempty"`
	Members  []PresenceMember `json:"members,omitempty"`
	Range    *cache.Cursor    `json:"range,omitempty"`
	Ops      *delta.Delta     `json:"ops,omitempty"`
	Content  string           `json:"content,omitempty"`
}

// 广播给同文档房间内连接的“已应用操作”事件
// - 与 op_applied(ack) 区分：这里用于把变更推送给其他协作者（包括同用户的其他标签页）
// - 收到后在本地对未确认的修改做 transform 再应用 ops，并将本地 revision 对齐到 revision
type OpBroadcastMessage struct {
	Type      string       `json:"type"` // 固定 "op_broadcast"
	DocID     string       `json:"docId"`
	Revision  uint64       `json:"revision"` // 服务端已应用后的最新版本
	AuthorID  uint64       `json:"authorId"`
	ClientId  string       `json:"clientId,omitempty"`
	ClientSeq uint64       `json:"clientSeq,omitempty"`
	Ops       *delta.Delta `json:"ops"`
	AppliedAt time.Time    `json:"appliedAt"`
}

type OpAppliedMessage struct {
	Type            string       `json:"type"` // 固定 "op_applied"
	DocID           string       `json:"docId"`
	BaseRevision    uint64       `json:"baseRevision"`    // 客户端提交时的 base
	CurrentRevision uint64       `json:"currentRevision"` // 服务端应用后的版本
	ClientId        string       `json:"clientId"`
	ClientSeq       uint64       `json:"clientSeq"`
	OperationID     string       `json:"operationId"`
	Ops             *delta.Delta `json:"ops"` // rebase 之后实际落地的 delta
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
