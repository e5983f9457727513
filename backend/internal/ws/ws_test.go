package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"collabDelta/backend/internal/cache"
	"collabDelta/backend/internal/collab"
)

type memPresence struct {
	mu      sync.Mutex
	members map[string]map[uint64]string
}

func newMemPresence() *memPresence {
	return &memPresence{members: map[string]map[uint64]string{}}
}

func (p *memPresence) AddMember(_ context.Context, docID string, userID uint64, username string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[docID] == nil {
		p.members[docID] = map[uint64]string{}
	}
	p.members[docID][userID] = username
	return nil
}

func (p *memPresence) RemoveMember(_ context.Context, docID string, userID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members[docID], userID)
	return nil
}

func (p *memPresence) GetDocuments(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var docs []string
	for d := range p.members {
		docs = append(docs, d)
	}
	return docs, nil
}

func (p *memPresence) GetAliveMembersWithNames(_ context.Context, docID string) ([]cache.PresenceMember, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []cache.PresenceMember
	for uid, name := range p.members[docID] {
		out = append(out, cache.PresenceMember{UserID: uid, Username: name})
	}
	return out, nil
}

type inbound struct {
	Type            string          `json:"type"`
	DocID           string          `json:"docId"`
	Revision        uint64          `json:"revision"`
	CurrentRevision uint64          `json:"currentRevision"`
	UserID          uint64          `json:"userId"`
	Ops             json.RawMessage `json:"ops"`
	Range           *cache.Cursor   `json:"range"`
	Content         string          `json:"content"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := collab.NewInMemoryService(collab.Deps{}, collab.Options{})
	hub := NewHub(newMemPresence(), nil)
	m := NewManager(hub, svc, collab.NewSemaphoreControl(4))

	r := gin.New()
	// 测试里直接从 query 取用户，不走 JWT
	r.GET("/ws", func(c *gin.Context) {
		uid, _ := strconv.ParseUint(c.Query("uid"), 10, 64)
		c.Set("userId", uid)
		c.Set("username", "user"+c.Query("uid"))
		m.WebSocketConnect(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, uid int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.Itoa(uid)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	readUntil(t, conn, TypeWelcome)
	return conn
}

// readUntil 跳过其他类型的消息直到读到 typ
func readUntil(t *testing.T, conn *websocket.Conn, typ string) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", typ)
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestCollaborationOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)

	send(t, alice, `{"type":"joinDocument","docId":"d1"}`)
	joined := readUntil(t, alice, TypeJoinDocument)
	require.Equal(t, "d1", joined.DocID)
	require.JSONEq(t, `[]`, string(joined.Ops))

	send(t, bob, `{"type":"joinDocument","docId":"d1"}`)
	readUntil(t, bob, TypeJoinDocument)

	send(t, alice, `{"type":"op_submit","baseRevision":0,"clientId":"a","clientSeq":1,"ops":[{"insert":"hi"}]}`)
	ack := readUntil(t, alice, TypeOpApplied)
	require.Equal(t, uint64(1), ack.CurrentRevision)
	got := readUntil(t, bob, TypeOpBroadcast)
	require.Equal(t, uint64(1), got.Revision)
	require.JSONEq(t, `[{"insert":"hi"}]`, string(got.Ops))

	// bob 基于旧版本提交，服务端 rebase
	send(t, bob, `{"type":"op_submit","baseRevision":0,"clientId":"b","clientSeq":1,"ops":[{"insert":"X"}]}`)
	ack = readUntil(t, bob, TypeOpApplied)
	require.Equal(t, uint64(2), ack.CurrentRevision)
	require.JSONEq(t, `[{"retain":2},{"insert":"X"}]`, string(ack.Ops))
	readUntil(t, alice, TypeOpBroadcast)

	// 撤销推给所有人，包括自己
	send(t, alice, `{"type":"undo","clientId":"a"}`)
	undo := readUntil(t, alice, TypeOpBroadcast)
	require.Equal(t, uint64(3), undo.Revision)
	require.JSONEq(t, `[{"delete":2}]`, string(undo.Ops))
	readUntil(t, bob, TypeOpBroadcast)

	send(t, bob, `{"type":"loadDocumentContent"}`)
	content := readUntil(t, bob, TypeLoadDocumentContent)
	require.Equal(t, "X", content.Content)
	require.Equal(t, uint64(3), content.Revision)
}

func TestCursorBroadcast(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)
	send(t, alice, `{"type":"joinDocument","docId":"d1"}`)
	readUntil(t, alice, TypeJoinDocument)
	send(t, bob, `{"type":"joinDocument","docId":"d1"}`)
	readUntil(t, bob, TypeJoinDocument)

	send(t, alice, `{"type":"cursor","range":{"index":3,"length":1}}`)
	cur := readUntil(t, bob, TypeCursor)
	require.Equal(t, uint64(1), cur.UserID)
	require.Equal(t, &cache.Cursor{Index: 3, Length: 1}, cur.Range)
}

func TestBadMessages(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, 1)

	send(t, alice, `{"type":"op_submit","clientId":"a","clientSeq":1,"ops":[{"insert":"x"}]}`)
	require.Equal(t, "NO_DOCUMENT", readUntil(t, alice, TypeError).Content)

	send(t, alice, `{"type":"joinDocument","docId":"d1"}`)
	readUntil(t, alice, TypeJoinDocument)

	send(t, alice, `{"type":"op_submit","clientId":"a","clientSeq":1,"ops":[{"insert":"x","retain":1}]}`)
	require.Contains(t, readUntil(t, alice, TypeError).Content, "delta")

	send(t, alice, `{"type":"undo","clientId":"a"}`)
	require.Equal(t, "nothing to undo", readUntil(t, alice, TypeError).Content)

	send(t, alice, `{"type":"whatever"}`)
	readUntil(t, alice, TypeIgnored)

	send(t, alice, `not json`)
	readUntil(t, alice, TypeError)
}

func TestAppliedOpsReachPeersInRevisionOrder(t *testing.T) {
	srv := newTestServer(t)
	const writers, perWriter = 3, 8

	observer := dial(t, srv, 100)
	send(t, observer, `{"type":"joinDocument","docId":"d1"}`)
	readUntil(t, observer, TypeJoinDocument)

	conns := make([]*websocket.Conn, writers)
	for i := range conns {
		conns[i] = dial(t, srv, i+1)
		send(t, conns[i], `{"type":"joinDocument","docId":"d1"}`)
		readUntil(t, conns[i], TypeJoinDocument)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			for seq := 1; seq <= perWriter; seq++ {
				msg := fmt.Sprintf(`{"type":"op_submit","baseRevision":0,"clientId":"w%d","clientSeq":%d,"ops":[{"insert":"%d"}]}`, i, seq, i)
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					errs <- err
					return
				}
			}
		}(i, conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for want := uint64(1); want <= writers*perWriter; want++ {
		got := readUntil(t, observer, TypeOpBroadcast)
		require.Equal(t, want, got.Revision)
	}
}
