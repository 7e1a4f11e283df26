package service

import (
	"context"
	"fmt"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/repository/contract"
	"novelsync-be/pkg/patch"
)

type SectionUpdateInput struct {
	ProjectID string
	SectionID string
	Patch     string
	Content   string
	UserID    string
}

type ISectionService interface {
	Get(ctx context.Context, projectID, sectionID string) (*entity.Section, error)
	Seed(ctx context.Context, projectID, sectionID, content, userID string) (entity.Section, error)
	ApplyUpdate(ctx context.Context, input SectionUpdateInput) (entity.Section, error)
}

type sectionService struct {
	store  contract.SectionStore
	logger logger.ILogger
	now    func() time.Time
}

func NewSectionService(store contract.SectionStore, log logger.ILogger) ISectionService {
	return &sectionService{store: store, logger: log, now: time.Now}
}

func (s *sectionService) Get(ctx context.Context, projectID, sectionID string) (*entity.Section, error) {
	return s.store.Get(ctx, projectID, sectionID)
}

// Seed replaces the relay's copy with content supplied by an authoritative
// joiner.
func (s *sectionService) Seed(ctx context.Context, projectID, sectionID, content, userID string) (entity.Section, error) {
	section := entity.Section{
		ProjectID: projectID,
		SectionID: sectionID,
		Content:   content,
		UpdatedBy: userID,
		UpdatedAt: s.now(),
	}
	if err := s.store.Save(ctx, section); err != nil {
		return entity.Section{}, fmt.Errorf("seed section: %w", err)
	}
	return section, nil
}

// ApplyUpdate patches the relay's copy. The sender's full content wins when
// the patch does not apply or when the patched copy drifted from it.
func (s *sectionService) ApplyUpdate(ctx context.Context, input SectionUpdateInput) (entity.Section, error) {
	stored, err := s.store.Get(ctx, input.ProjectID, input.SectionID)
	if err != nil {
		return entity.Section{}, fmt.Errorf("load section: %w", err)
	}

	next := input.Content
	if stored != nil && input.Patch != "" {
		patched, ok, applyErr := patch.Apply(input.Patch, stored.Content)
		switch {
		case applyErr != nil:
			s.logger.Warn("SectionService", "Malformed patch, using full content", map[string]interface{}{
				"project_id": input.ProjectID,
				"section_id": input.SectionID,
				"error":      applyErr.Error(),
			})
		case !ok:
			s.logger.Debug("SectionService", "Patch did not apply cleanly, using full content", map[string]interface{}{
				"project_id": input.ProjectID,
				"section_id": input.SectionID,
			})
		case input.Content == "" || patched == input.Content:
			next = patched
		default:
			s.logger.Debug("SectionService", "Relay copy drifted from sender", map[string]interface{}{
				"project_id": input.ProjectID,
				"section_id": input.SectionID,
			})
		}
	}

	section := entity.Section{
		ProjectID: input.ProjectID,
		SectionID: input.SectionID,
		Content:   next,
		UpdatedBy: input.UserID,
		UpdatedAt: s.now(),
	}
	if err := s.store.Save(ctx, section); err != nil {
		return entity.Section{}, fmt.Errorf("save section: %w", err)
	}
	return section, nil
}
