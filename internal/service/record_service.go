package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"

	"github.com/go-playground/validator/v10"
)

var ErrEmptyPatch = errors.New("nothing to change")

// RecordService is the user-facing surface of the local history.
type RecordService struct {
	history  repository.HistoryRepository
	validate *validator.Validate
}

func NewRecordService(history repository.HistoryRepository) *RecordService {
	return &RecordService{
		history:  history,
		validate: validator.New(),
	}
}

func (s *RecordService) Create(ctx context.Context, req *domain.CreateRecordRequest) (*domain.EmotionRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return s.history.Create(ctx, req)
}

// Edit changes content fields only. Bookkeeping and choice history go through
// their own paths.
func (s *RecordService) Edit(ctx context.Context, id string, patch *domain.RecordPatch) (*domain.EmotionRecord, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}

	p := &domain.RecordPatch{
		Message:   patch.Message,
		Emotion:   patch.Emotion,
		Intensity: patch.Intensity,
		TopicTags: patch.TopicTags,
		Important: patch.Important,
		FollowUps: patch.FollowUps,
	}
	if p.Empty() {
		return nil, ErrEmptyPatch
	}
	return s.history.Patch(ctx, id, p)
}

func (s *RecordService) Delete(ctx context.Context, id string) (*domain.EmotionRecord, error) {
	return s.history.SoftDelete(ctx, id)
}

func (s *RecordService) Get(ctx context.Context, id string) (*domain.EmotionRecord, error) {
	rec, err := s.history.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, repository.ErrRecordNotFound
	}
	return rec, nil
}

// List returns records newest first. Tombstones are included only on request.
func (s *RecordService) List(ctx context.Context, includeDeleted bool) ([]*domain.EmotionRecord, error) {
	records, err := s.history.List(ctx)
	if err != nil {
		return nil, err
	}
	if !includeDeleted {
		records = domain.Visible(records)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}
