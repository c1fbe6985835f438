package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskState string

const (
	TaskNotStarted TaskState = "NOT_STARTED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskComplete   TaskState = "COMPLETE"
	TaskFailed     TaskState = "FAILED"
)

type Task struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PublishID *uuid.UUID `gorm:"type:uuid"            json:"publish_id,omitempty"`
	State     TaskState  `gorm:"not null"             json:"state"`
	Updated   *time.Time `json:"updated,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t Task) GetID() uuid.UUID {
	return t.ID
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.State == "" {
		t.State = TaskNotStarted
	}

	return nil
}

func (t *Task) BeforeUpdate(tx *gorm.DB) error {
	now := touch(tx)
	t.Updated = &now
	return nil
}

// Terminal tasks are never picked up again
func (t Task) Done() bool {
	return t.State == TaskComplete || t.State == TaskFailed
}
