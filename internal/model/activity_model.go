package model

import (
	"time"

	"github.com/google/uuid"
)

type Activity struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProjectId string    `gorm:"type:varchar(100);not null;index:idx_activities_project_created,priority:1"`
	Type      string    `gorm:"type:varchar(50);not null"`
	UserId    string    `gorm:"type:varchar(100)"`
	UserName  string    `gorm:"type:varchar(255)"`
	ThreadId  string    `gorm:"type:varchar(100)"`
	CommentId string    `gorm:"type:varchar(100)"`
	SectionId string    `gorm:"type:varchar(100)"`
	Text      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_activities_project_created,priority:2"`
}

func (Activity) TableName() string {
	return "activities"
}
