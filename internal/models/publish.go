package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PublishState string

const (
	PublishPending    PublishState = "PENDING"
	PublishCommitting PublishState = "COMMITTING"
	PublishCommitted  PublishState = "COMMITTED"
	PublishFailed     PublishState = "FAILED"
)

type Publish struct {
	ID      uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Env     string       `gorm:"not null"             json:"env"`
	State   PublishState `gorm:"not null"             json:"state"`
	Updated *time.Time   `json:"updated,omitempty"`
	Items   []Item       `gorm:"foreignKey:PublishID" json:"-"`
}

func (Publish) TableName() string {
	return "publishes"
}

func (p Publish) GetID() uuid.UUID {
	return p.ID
}

func (p *Publish) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.State == "" {
		p.State = PublishPending
	}

	return nil
}

func (p *Publish) BeforeUpdate(tx *gorm.DB) error {
	now := touch(tx)
	p.Updated = &now
	return nil
}

type Item struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"                                                         json:"id"`
	WebURI    string     `gorm:"column:web_uri;not null;uniqueIndex:items_publish_id_web_uri_key,priority:2" json:"web_uri"`
	ObjectKey *string    `json:"object_key,omitempty"`
	LinkTo    *string    `json:"link_to,omitempty"`
	PublishID *uuid.UUID `gorm:"type:uuid;uniqueIndex:items_publish_id_web_uri_key,priority:1"              json:"publish_id,omitempty"`
}

func (Item) TableName() string {
	return "items"
}

func (i Item) GetID() uuid.UUID {
	return i.ID
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}

	return nil
}
