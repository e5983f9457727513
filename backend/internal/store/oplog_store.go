package store

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collabDelta/backend/internal/entity"
)

// InitMySQL 打开 gorm 连接并迁移操作日志表
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entity.DocOp{}); err != nil {
		return nil, err
	}
	return db, nil
}

type OpLogStore struct{ db *gorm.DB }

func NewOpLogStore(db *gorm.DB) *OpLogStore {
	return &OpLogStore{db: db}
}

// AppendOp (doc_id, revision) 冲突说明这条已经写过
func (s *OpLogStore) AppendOp(ctx context.Context, op *entity.DocOp) error {
	err := s.db.WithContext(ctx).Create(op).Error
	if err != nil && isDuplicateKey(err) {
		return nil
	}
	return err
}

// OpsSince 按版本升序返回 fromRevision 之后的操作，limit<=0 不限制
func (s *OpLogStore) OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]entity.DocOp, error) {
	var ops []entity.DocOp
	q := s.db.WithContext(ctx).
		Where("doc_id = ? AND revision > ?", docID, fromRevision).
		Order("revision ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}
