package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collabDelta/backend/internal/ot/delta"
)

// Cursor 一个用户的选区，Length 为 0 时是光标
type Cursor struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

var ErrCursorNotFound = errors.New("cursor not found")

const maxWatchRetry = 3

// TransformCursor 把选区映射到 change 之后的文档上。
// 作者自己的光标用 priority=false，插入点上的光标会被推到插入内容之后。
func TransformCursor(c Cursor, change *delta.Delta, priority bool) Cursor {
	start := change.TransformPosition(c.Index, priority)
	end := change.TransformPosition(c.Index+c.Length, priority)
	if end < start {
		end = start
	}
	return Cursor{Index: start, Length: end - start}
}

type CursorCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewCursorCache(rdb redis.UniversalClient, ttl time.Duration) *CursorCache {
	return &CursorCache{rdb: rdb, ttl: ttl}
}

func (c *CursorCache) SetCursor(ctx context.Context, docID string, userID uint64, cur Cursor) error {
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	tx := c.rdb.TxPipeline()
	tx.HSet(ctx, cursorKey(docID), strconv.FormatUint(userID, 10), b)
	if c.ttl > 0 {
		tx.Expire(ctx, cursorKey(docID), c.ttl)
	}
	_, err = tx.Exec(ctx)
	return err
}

func (c *CursorCache) GetCursor(ctx context.Context, docID string, userID uint64) (Cursor, error) {
	b, err := c.rdb.HGet(ctx, cursorKey(docID), strconv.FormatUint(userID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cursor{}, ErrCursorNotFound
	}
	if err != nil {
		return Cursor{}, err
	}
	var cur Cursor
	if err := json.Unmarshal(b, &cur); err != nil {
		return Cursor{}, err
	}
	return cur, nil
}

// DocCursors 返回文档里所有用户的光标；解析失败的条目跳过
func (c *CursorCache) DocCursors(ctx context.Context, docID string) (map[uint64]Cursor, error) {
	raw, err := c.rdb.HGetAll(ctx, cursorKey(docID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return parseCursors(raw), nil
}

func parseCursors(raw map[string]string) map[uint64]Cursor {
	out := make(map[uint64]Cursor, len(raw))
	for field, v := range raw {
		uid, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		var cur Cursor
		if err := json.Unmarshal([]byte(v), &cur); err != nil {
			continue
		}
		out[uid] = cur
	}
	return out
}

// TransformCursors 在 WATCH 事务里把文档所有光标针对 change 移动一遍
func (c *CursorCache) TransformCursors(ctx context.Context, docID string, authorID uint64, change *delta.Delta) error {
	key := cursorKey(docID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		cursors := parseCursors(raw)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for uid, cur := range cursors {
				moved := TransformCursor(cur, change, uid != authorID)
				if moved == cur {
					continue
				}
				b, err := json.Marshal(moved)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, strconv.FormatUint(uid, 10), b)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxWatchRetry; i++ {
		err = c.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
