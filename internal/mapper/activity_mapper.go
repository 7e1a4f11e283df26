package mapper

import (
	"novelsync-be/internal/entity"
	"novelsync-be/internal/model"
)

type ActivityMapper struct{}

func NewActivityMapper() *ActivityMapper {
	return &ActivityMapper{}
}

func (m *ActivityMapper) ToEntity(a *model.Activity) entity.Activity {
	return entity.Activity{
		ID:        a.Id.String(),
		ProjectID: a.ProjectId,
		Type:      a.Type,
		UserID:    a.UserId,
		UserName:  a.UserName,
		ThreadID:  a.ThreadId,
		CommentID: a.CommentId,
		SectionID: a.SectionId,
		Text:      a.Text,
		CreatedAt: a.CreatedAt,
	}
}

func (m *ActivityMapper) ToModel(a entity.Activity) *model.Activity {
	return &model.Activity{
		Id:        toUUID(a.ID),
		ProjectId: a.ProjectID,
		Type:      a.Type,
		UserId:    a.UserID,
		UserName:  a.UserName,
		ThreadId:  a.ThreadID,
		CommentId: a.CommentID,
		SectionId: a.SectionID,
		Text:      a.Text,
		CreatedAt: a.CreatedAt,
	}
}

func (m *ActivityMapper) ToEntities(activities []*model.Activity) []entity.Activity {
	entities := make([]entity.Activity, len(activities))
	for i, a := range activities {
		entities[i] = m.ToEntity(a)
	}
	return entities
}
