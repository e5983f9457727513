package entity

import "time"

// DocOp 一条已经落地的操作；Ops 是 wire 格式的 delta JSON
type DocOp struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	DocID        string    `gorm:"type:varchar(64);uniqueIndex:idx_doc_rev,priority:1"`
	Revision     uint64    `gorm:"uniqueIndex:idx_doc_rev,priority:2"`
	OperationID  string    `gorm:"type:varchar(64)"`
	AuthorID     uint64    `gorm:"index"`
	ClientID     string    `gorm:"type:varchar(64)"`
	BaseRevision uint64
	Ops          string `gorm:"type:mediumtext"`
	AppliedAt    time.Time
	CreatedAt    time.Time
}
