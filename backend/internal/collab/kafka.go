package collab

import (
	"time"

	"collabDelta/backend/internal/ot/delta"
)

const EventOpApplied = "OP_APPLIED"

type DocOpEvent struct {
	EventType    string       `json:"eventType"` // 固定 "OP_APPLIED"
	DocID        string       `json:"docId"`
	OperationID  string       `json:"operationId"`
	Revision     uint64       `json:"revision"`
	AuthorID     uint64       `json:"authorId"`
	ClientID     string       `json:"clientId"`
	ClientSeq    uint64       `json:"clientSeq"` // 针对同一个 clientId 的“本地递增序号”
	BaseRevision uint64       `json:"baseRevision"`
	Ops          *delta.Delta `json:"ops"` // rebase 之后真正落地的 delta
	AppliedAt    time.Time    `json:"appliedAt"`
}

func newDocOpEvent(docID string, op AppliedOp, clientSeq uint64) DocOpEvent {
	return DocOpEvent{
		EventType:    EventOpApplied,
		DocID:        docID,
		OperationID:  op.OperationID,
		Revision:     op.Revision,
		AuthorID:     op.AuthorID,
		ClientID:     op.ClientID,
		ClientSeq:    clientSeq,
		BaseRevision: op.BaseRevision,
		Ops:          op.Ops,
		AppliedAt:    op.AppliedAt,
	}
}
