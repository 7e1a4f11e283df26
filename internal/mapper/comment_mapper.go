package mapper

import (
	"novelsync-be/internal/entity"
	"novelsync-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CommentMapper struct{}

func NewCommentMapper() *CommentMapper {
	return &CommentMapper{}
}

// toUUID keeps foreign IDs stable: anything that is not already a UUID is
// mapped to a name-based UUID.
func toUUID(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
}

func (m *CommentMapper) ToEntity(c *model.Comment) *entity.Comment {
	if c == nil {
		return nil
	}

	var parentID *string
	if c.ParentId != nil {
		p := c.ParentId.String()
		parentID = &p
	}

	sel := c.Selection.Data()
	mentions := []string(c.Mentions)
	if mentions == nil {
		mentions = []string{}
	}

	return &entity.Comment{
		ID:        c.Id.String(),
		ProjectID: c.ProjectId,
		ThreadID:  c.ThreadId.String(),
		ParentID:  parentID,
		UserID:    c.UserId,
		UserName:  c.UserName,
		Text:      c.Text,
		Format:    c.Format,
		Selection: entity.Selection{
			Start:     sel.Start,
			End:       sel.End,
			Text:      sel.Text,
			SectionID: sel.SectionID,
		},
		Mentions:  mentions,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
}

func (m *CommentMapper) ToModel(c *entity.Comment) *model.Comment {
	if c == nil {
		return nil
	}

	var parentID *uuid.UUID
	if !c.IsRoot() {
		p := toUUID(*c.ParentID)
		parentID = &p
	}

	return &model.Comment{
		Id:        toUUID(c.ID),
		ProjectId: c.ProjectID,
		ThreadId:  toUUID(c.ThreadID),
		ParentId:  parentID,
		UserId:    c.UserID,
		UserName:  c.UserName,
		Text:      c.Text,
		Format:    c.Format,
		Selection: datatypes.NewJSONType(model.CommentSelection{
			Start:     c.Selection.Start,
			End:       c.Selection.End,
			Text:      c.Selection.Text,
			SectionID: c.Selection.SectionID,
		}),
		Mentions:  datatypes.JSONSlice[string](c.Mentions),
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
}

func (m *CommentMapper) ToEntities(comments []*model.Comment) []*entity.Comment {
	entities := make([]*entity.Comment, len(comments))
	for i, c := range comments {
		entities[i] = m.ToEntity(c)
	}
	return entities
}
