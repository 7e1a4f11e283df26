package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CommentSelection struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
	SectionID string `json:"sectionId"`
}

type Comment struct {
	Id        uuid.UUID                            `gorm:"type:uuid;primaryKey"`
	ProjectId string                               `gorm:"type:varchar(100);not null;index:idx_comments_project_created,priority:1"`
	ThreadId  uuid.UUID                            `gorm:"type:uuid;not null;index"`
	ParentId  *uuid.UUID                           `gorm:"type:uuid"`
	UserId    string                               `gorm:"type:varchar(100);not null"`
	UserName  string                               `gorm:"type:varchar(255)"`
	Text      string                               `gorm:"type:text;not null"`
	Format    string                               `gorm:"type:varchar(10);default:'plain'"`
	Selection datatypes.JSONType[CommentSelection] `gorm:"type:jsonb"`
	Mentions  datatypes.JSONSlice[string]          `gorm:"type:jsonb"`
	Status    string                               `gorm:"type:varchar(10);default:'open';index"`
	CreatedAt time.Time                            `gorm:"index:idx_comments_project_created,priority:2"`
}

func (Comment) TableName() string {
	return "comments"
}
