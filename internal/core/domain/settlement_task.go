package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the delivery state of a settlement task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusDead       TaskStatus = "DEAD"
)

// SettlementTask is a durable request to drive one transfer through
// settlement. It is written in the same transaction that reserves liquidity.
type SettlementTask struct {
	ID            uuid.UUID  `json:"id"`
	TransferID    uuid.UUID  `json:"transfer_id"`
	Status        TaskStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewSettlementTask creates a task due immediately.
func NewSettlementTask(transferID uuid.UUID, now time.Time) *SettlementTask {
	return &SettlementTask{
		ID:            uuid.New(),
		TransferID:    transferID,
		Status:        TaskStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
