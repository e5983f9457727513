package store

import (
	"context"
	"database/sql"
	"errors"
)

type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot 同一版本重复保存视为成功
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content)
		VALUES (?, ?, ?)`,
		docID,
		rev,
		content,
	)
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

// LoadLatestSnapshot 没有快照时返回 nil, 0, nil
func (s *SnapshotStore) LoadLatestSnapshot(ctx context.Context, docID string) ([]byte, uint64, error) {
	var (
		content []byte
		rev     uint64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content, revision FROM document_snapshots
		WHERE document_id = ? ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&content, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return content, rev, nil
}
