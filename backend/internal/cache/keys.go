package cache

import "fmt"

// 键语义：
// - roomKey(docID):     房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):    房间内 userId→username 映射（Hash）
// - docsKey():          有人在线的文档集合（Set<docID>）
// - cursorKey(docID):   房间内 userId→光标 JSON（Hash）
// - snapshotKey(docID): 最新快照（Hash: rev, content）
//
// 同一文档的键都带 {docID:xxx} hash tag，集群模式下落在同一个 slot

const (
	keyRoomFmt     = "presence:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt    = "presence:room:names:{docID:%s}" // Hash<userId -> username>
	keyDocsSet     = "presence:docs"                  // Set<docID>
	keyCursorFmt   = "presence:cursor:{docID:%s}"     // Hash<userId -> {"index":..,"length":..}>
	keySnapshotFmt = "collab:snapshot:{docID:%s}"     // Hash<rev, content>
)

func roomKey(docID string) string     { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string    { return fmt.Sprintf(keyNamesFmt, docID) }
func docsKey() string                 { return keyDocsSet }
func cursorKey(docID string) string   { return fmt.Sprintf(keyCursorFmt, docID) }
func snapshotKey(docID string) string { return fmt.Sprintf(keySnapshotFmt, docID) }
