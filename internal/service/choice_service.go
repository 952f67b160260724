package service

import (
	"context"
	"reflect"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
)

// ChoiceService persists choice applications. The transform itself is
// ApplyChoice; this type only reads the record, diffs, and patches.
type ChoiceService struct {
	history repository.HistoryRepository
	now     repository.Clock
}

func NewChoiceService(history repository.HistoryRepository, now repository.Clock) *ChoiceService {
	if now == nil {
		now = repository.SystemClock
	}
	return &ChoiceService{
		history: history,
		now:     now,
	}
}

// Apply looks up choiceID among the choices attached to the record and
// applies it.
func (s *ChoiceService) Apply(ctx context.Context, recordID, choiceID string) (*domain.EmotionRecord, error) {
	record, err := s.history.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, repository.ErrRecordNotFound
	}

	for _, c := range record.Choices {
		if c.ID != choiceID {
			continue
		}
		if c.DisabledReason != "" {
			return nil, ErrChoiceDisabled
		}
		return s.persist(ctx, record, ApplyChoice(record, c, s.now()))
	}
	return nil, ErrChoiceNotFound
}

// ApplyChoice applies a choice that is not necessarily attached to the record.
func (s *ChoiceService) ApplyChoice(ctx context.Context, recordID string, choice domain.Choice) (*domain.EmotionRecord, error) {
	record, err := s.history.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, repository.ErrRecordNotFound
	}
	if choice.DisabledReason != "" {
		return nil, ErrChoiceDisabled
	}
	return s.persist(ctx, record, ApplyChoice(record, choice, s.now()))
}

func (s *ChoiceService) Undo(ctx context.Context, recordID string) (*domain.EmotionRecord, error) {
	record, err := s.history.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, repository.ErrRecordNotFound
	}

	next, ok := UndoLastChoice(record, s.now())
	if !ok {
		return nil, ErrNothingToUndo
	}
	return s.persist(ctx, record, next)
}

func (s *ChoiceService) persist(ctx context.Context, before, after *domain.EmotionRecord) (*domain.EmotionRecord, error) {
	if after == before {
		return before, nil
	}
	patch := DiffRecords(before, after)
	if patch.Empty() {
		return before, nil
	}
	return s.history.Patch(ctx, before.ID, patch)
}

// DiffRecords returns a patch holding only the fields that differ between
// before and after, plus after's updatedAt when it moved.
func DiffRecords(before, after *domain.EmotionRecord) *domain.RecordPatch {
	p := &domain.RecordPatch{}

	if before.Message != after.Message {
		v := after.Message
		p.Message = &v
	}
	if before.Emotion != after.Emotion {
		v := after.Emotion
		p.Emotion = &v
	}
	if before.Intensity != after.Intensity {
		v := after.Intensity
		p.Intensity = &v
	}
	if before.Deleted != after.Deleted {
		v := after.Deleted
		p.Deleted = &v
	}
	if before.Important != after.Important {
		v := after.Important
		p.Important = &v
	}
	if !reflect.DeepEqual(before.TopicTags, after.TopicTags) {
		v := append([]string{}, after.TopicTags...)
		p.TopicTags = &v
	}
	if !reflect.DeepEqual(before.FollowUps, after.FollowUps) {
		v := append([]domain.FollowUp{}, after.FollowUps...)
		p.FollowUps = &v
	}
	if !reflect.DeepEqual(before.AppliedChoices, after.AppliedChoices) {
		v := append([]string{}, after.AppliedChoices...)
		p.AppliedChoices = &v
	}
	if !reflect.DeepEqual(before.AppliedChoiceHistory, after.AppliedChoiceHistory) {
		v := append([]domain.AppliedChoice{}, after.AppliedChoiceHistory...)
		p.AppliedChoiceHistory = &v
	}
	if !p.Empty() && after.UpdatedAt != before.UpdatedAt {
		v := after.UpdatedAt
		p.UpdatedAt = &v
	}

	return p
}
