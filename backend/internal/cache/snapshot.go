package cache

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	BaseTTL = 24 * time.Hour   // 基础过期时间
	Jitter  = 60 * time.Minute // 随机抖动范围
)

// 获取随机TTL，防止缓存雪崩
func getRandomTTL() time.Duration {
	return BaseTTL + time.Duration(rand.Int63n(int64(Jitter)))
}

// SnapshotCache 缓存每个文档最新的快照（delta JSON + 版本）
type SnapshotCache struct {
	rdb redis.UniversalClient
}

func NewSnapshotCache(rdb redis.UniversalClient) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

func (s *SnapshotCache) SetSnapshot(ctx context.Context, docID string, rev uint64, content []byte) error {
	key := snapshotKey(docID)
	tx := s.rdb.TxPipeline()
	tx.HSet(ctx, key, "rev", rev, "content", content)
	tx.Expire(ctx, key, getRandomTTL())
	_, err := tx.Exec(ctx)
	return err
}

// GetSnapshot 未命中时 hit=false 且 err=nil
func (s *SnapshotCache) GetSnapshot(ctx context.Context, docID string) ([]byte, uint64, bool, error) {
	vals, err := s.rdb.HMGet(ctx, snapshotKey(docID), "rev", "content").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	revStr, ok1 := vals[0].(string)
	content, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, 0, false, nil
	}
	rev, err := strconv.ParseUint(revStr, 10, 64)
	if err != nil {
		return nil, 0, false, err
	}
	return []byte(content), rev, true, nil
}
