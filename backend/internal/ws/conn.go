package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabDelta/backend/internal/collab"
	"collabDelta/backend/internal/ot/delta"
)

const (
	presenceTTL   = 600 * time.Second
	submitTimeout = 200 * time.Millisecond
	writeWait     = 10 * time.Second
	sendQueueSize = 32
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// clientId -> docId，断开时释放对应的撤销历史
	clients map[string]string
	send    chan OutboundMessage
	done    chan struct{}
	once    sync.Once
	//协作引擎服务
	svc collab.Service
	// 信号量控制
	sem *collab.SemaphoreControl
	log *zap.Logger
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl, log *zap.Logger) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		clients:  make(map[string]string),
		send:     make(chan OutboundMessage, sendQueueSize),
		done:     make(chan struct{}),
		svc:      svc,
		sem:      sem,
		log:      log,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// 如果队列满了，则丢弃消息
		c.log.Warn("send queue full, drop message", zap.String("type", msg.MessageType()))
	}
}

func (c *Conn) sendError(err error) {
	c.SendMessage_Enqueue(ServerMessage{Type: TypeError, DocID: c.docID, Content: err.Error()})
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

// 消息里没带 docId 时用当前房间
func (c *Conn) targetDoc(msg ClientMessage) string {
	if msg.DocID != "" {
		return msg.DocID
	}
	return c.docID
}

var errNoDocument = errors.New("NO_DOCUMENT")

func decodeOps(raw json.RawMessage) (*delta.Delta, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing ops")
	}
	return delta.Decode(raw)
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	docID := c.targetDoc(msg)
	if docID == "" {
		c.sendError(errNoDocument)
		return
	}
	change, err := decodeOps(msg.Ops)
	if err != nil {
		c.sendError(err)
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := c.sem.Acquire(submitCtx); err != nil {
		c.sendError(err)
		return
	}
	defer c.sem.Release()

	unlock := c.hub.lockDoc(docID)
	defer unlock()
	op, err := c.svc.Submit(submitCtx, docID, c.userID, msg.BaseRevision, msg.ClientId, msg.ClientSeq, change)
	if err != nil {
		c.log.Info("submit rejected", zap.String("doc", docID), zap.String("client", msg.ClientId), zap.Error(err))
		c.sendError(err)
		return
	}
	c.clients[msg.ClientId] = docID
	c.SendMessage_Enqueue(OpAppliedMessage{
		Type:            TypeOpApplied,
		DocID:           docID,
		BaseRevision:    msg.BaseRevision,
		CurrentRevision: op.Revision,
		ClientId:        msg.ClientId,
		ClientSeq:       msg.ClientSeq,
		OperationID:     op.OperationID,
		Ops:             op.Ops,
	})
	c.hub.BroadcastAppliedOp(docID, c, op, msg.ClientSeq)
}

// 服务端撤销/重做：结果当成普通远端修改推给包括自己在内的所有连接
func (c *Conn) handleHistory(ctx context.Context, msg ClientMessage) {
	docID := c.targetDoc(msg)
	if docID == "" {
		c.sendError(errNoDocument)
		return
	}
	var (
		op  collab.AppliedOp
		err error
	)
	unlock := c.hub.lockDoc(docID)
	defer unlock()
	if msg.Type == TypeUndo {
		op, err = c.svc.Undo(ctx, docID, c.userID, msg.ClientId)
	} else {
		op, err = c.svc.Redo(ctx, docID, c.userID, msg.ClientId)
	}
	if err != nil {
		c.sendError(err)
		return
	}
	c.hub.BroadcastAppliedOp(docID, nil, op, 0)
}

func (c *Conn) handleJoin(ctx context.Context, msg ClientMessage) {
	// 允许客户端在 joinDocument 中指定 docTitle 或 docId，用于动态切换房间
	docID := msg.DocID
	if msg.DocTitle != "" {
		id, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
		if err != nil {
			c.log.Warn("get document id", zap.String("title", msg.DocTitle), zap.Error(err))
			c.SendMessage_Enqueue(ServerMessage{Type: TypeError, Content: "GET_DOCID_FAILED"})
			return
		}
		docID = id
	}
	if docID == "" {
		c.sendError(errNoDocument)
		return
	}

	doc, rev, err := c.svc.LoadDocument(ctx, docID)
	if err != nil {
		c.log.Warn("load document", zap.String("doc", docID), zap.Error(err))
		c.SendMessage_Enqueue(ServerMessage{Type: TypeJoinDocument, DocID: docID, Content: "Document " + docID + " not found"})
		return
	}
	if c.docID != "" && c.docID != docID {
		// 先离开旧房间
		c.leaveRoom(ctx)
	}
	c.docID = docID
	c.hub.Join(docID, c)
	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		c.log.Warn("add member", zap.Error(err))
	}
	c.SendMessage_Enqueue(ServerMessage{Type: TypeJoinDocument, DocID: docID, Revision: rev, Ops: doc,
		Content: "Document " + docID + " joined by user " + strconv.FormatUint(c.userID, 10)})
	c.broadcastPresence(ctx, docID)
}

func (c *Conn) aliveMembers(ctx context.Context, docID string) []PresenceMember {
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		c.log.Warn("get alive members", zap.String("doc", docID), zap.Error(err))
		return nil
	}
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	return out
}

func (c *Conn) broadcastPresence(ctx context.Context, docID string) {
	c.hub.BroadcastPresence(docID, c.aliveMembers(ctx, docID))
}

// leaveRoom 离开当前房间并释放在这个文档上的撤销历史
func (c *Conn) leaveRoom(ctx context.Context) {
	docID := c.docID
	if docID == "" {
		return
	}
	c.hub.Leave(docID, c)
	if err := c.hub.presence.RemoveMember(ctx, docID, c.userID); err != nil {
		c.log.Warn("remove member", zap.String("doc", docID), zap.Error(err))
	}
	for clientID, d := range c.clients {
		if d == docID {
			c.svc.ReleaseClient(ctx, docID, clientID)
			delete(c.clients, clientID)
		}
	}
	c.docID = ""
	c.broadcastPresence(ctx, docID)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		// 连接断开时请求 ctx 可能已经取消
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		c.leaveRoom(cleanupCtx)
		cancel()
		c.close()
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read message", zap.String("doc", c.docID), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(err)
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Conn) dispatch(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeHeartbeat:
		if c.docID != "" {
			// 刷新TTL
			if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
				c.log.Warn("add member", zap.Error(err))
			}
			c.SendMessage_Enqueue(ServerMessage{Type: TypePresence, DocID: c.docID, Members: c.aliveMembers(ctx, c.docID)})
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})

	case TypeCreateDocument:
		if err := c.svc.CreateDocument(ctx, c.userID, msg.DocTitle); err != nil {
			c.log.Warn("create document", zap.String("title", msg.DocTitle), zap.Error(err))
			c.SendMessage_Enqueue(ServerMessage{Type: TypeError, Content: "CREATE_DOC_FAILED"})
			return
		}
		docID, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
		if err != nil {
			c.log.Warn("get document id", zap.String("title", msg.DocTitle), zap.Error(err))
			c.SendMessage_Enqueue(ServerMessage{Type: TypeError, Content: "GET_DOCID_FAILED"})
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeCreateDocument, DocID: docID,
			Content: "Document " + docID + " created by user " + strconv.FormatUint(c.userID, 10)})

	case TypeJoinDocument:
		c.handleJoin(ctx, msg)

	case TypeShowAliveMembers:
		docID := c.targetDoc(msg)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeShowAliveMembers, DocID: docID, Members: c.aliveMembers(ctx, docID)})

	case TypeOpSubmit:
		c.handleOpSubmit(ctx, msg)

	case TypeUndo, TypeRedo:
		c.handleHistory(ctx, msg)

	case TypeCursor:
		if c.docID == "" || msg.Range == nil {
			c.sendError(errNoDocument)
			return
		}
		cur := *msg.Range
		if c.hub.cursors != nil {
			if err := c.hub.cursors.SetCursor(ctx, c.docID, c.userID, cur); err != nil {
				c.log.Warn("set cursor", zap.Error(err))
			}
		}
		c.hub.BroadcastCursor(c.docID, c, cur)

	case TypeSaveDocument:
		docID := c.targetDoc(msg)
		if err := c.svc.SaveSnapshot(ctx, docID); err != nil {
			c.log.Warn("save document", zap.String("doc", docID), zap.Error(err))
			c.SendMessage_Enqueue(ServerMessage{Type: TypeSaveDocument, DocID: docID, Content: "Document " + docID + " save failed"})
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeSaveDocument, DocID: docID, Content: "Document " + docID + " saved"})

	case TypeLoadDocumentContent:
		docID := c.targetDoc(msg)
		content, revision, err := c.svc.LoadDocumentContent(ctx, docID)
		if err != nil {
			c.log.Warn("load document content", zap.String("doc", docID), zap.Error(err))
			c.sendError(err)
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLoadDocumentContent, DocID: docID, Content: content, Revision: revision})

	default:
		c.SendMessage_Enqueue(ServerMessage{Type: TypeIgnored, Content: "Unknown message type"})
	}
}

func (c *Conn) writeLoop() {
	defer c.ws.Close()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Warn("write message", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
