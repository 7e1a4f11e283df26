package memory

import (
	"context"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// SectionStore keeps the relay's working copy of each section. Sections
// nobody touched for a day are dropped; the next joiner re-seeds them.
type SectionStore struct {
	cache *cache.Cache
}

func NewSectionStore() contract.SectionStore {
	return &SectionStore{cache: cache.New(24*time.Hour, 30*time.Minute)}
}

func (s *SectionStore) Get(_ context.Context, projectID, sectionID string) (*entity.Section, error) {
	if x, found := s.cache.Get(projectID + ":" + sectionID); found {
		section := x.(entity.Section)
		return &section, nil
	}
	return nil, nil
}

func (s *SectionStore) Save(_ context.Context, section entity.Section) error {
	s.cache.Set(section.ProjectID+":"+section.SectionID, section, cache.DefaultExpiration)
	return nil
}
