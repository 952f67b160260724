package service

import (
	"context"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"

	"github.com/go-playground/validator/v10"
)

// ConflictService exposes stored conflicts to the user and applies their
// decisions.
type ConflictService struct {
	store    storage.KV
	now      repository.Clock
	validate *validator.Validate
}

func NewConflictService(store storage.KV, now repository.Clock) *ConflictService {
	if now == nil {
		now = repository.SystemClock
	}
	return &ConflictService{
		store:    store,
		now:      now,
		validate: validator.New(),
	}
}

func (s *ConflictService) repo() repository.ConflictRepository {
	return repository.NewConflictRepository(s.store)
}

func (s *ConflictService) List(ctx context.Context) ([]*domain.HistoryConflict, error) {
	return s.repo().List(ctx)
}

// Unresolved lists the conflicts still waiting on a decision.
func (s *ConflictService) Unresolved(ctx context.Context) ([]*domain.HistoryConflict, error) {
	all, err := s.repo().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.HistoryConflict, 0, len(all))
	for _, c := range all {
		if !c.Resolved() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *ConflictService) CountUnresolved(ctx context.Context) (int, error) {
	return s.repo().CountUnresolved(ctx)
}

func (s *ConflictService) Remove(ctx context.Context, conflictID string) error {
	return s.repo().Remove(ctx, conflictID)
}

func (s *ConflictService) Clear(ctx context.Context) error {
	return s.repo().Clear(ctx)
}

// Resolve writes the chosen version back through the record store, where it
// gets a fresh updatedAt and so is pushed on the next cycle. The shadow moves
// to the remote version that was seen, the record's conflict flag is cleared
// and the conflict is marked resolved.
func (s *ConflictService) Resolve(ctx context.Context, conflictID string, req *domain.ConflictResolutionRequest) (*domain.EmotionRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	var result *domain.EmotionRecord
	err := storage.Update(ctx, s.store, func(tx storage.KV) error {
		st := repository.NewLocalState(tx, s.now)

		c, err := st.Conflicts.Get(ctx, conflictID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrConflictNotFound
		}
		if c.Resolved() {
			return ErrConflictResolved
		}

		var chosen *domain.EmotionRecord
		source := domain.SourceLocal
		switch req.Resolution {
		case domain.ResolutionKeptLocal:
			chosen = c.Local
		case domain.ResolutionKeptRemote:
			chosen = c.Remote
			source = domain.SourceRemote
		case domain.ResolutionMerged:
			if req.Merged.ID != c.RecordID {
				return ErrMergedIDMismatch
			}
			chosen = req.Merged
			source = domain.SourceMerged
		}
		if chosen == nil {
			return ErrConflictNotFound
		}

		var floor int64
		if c.Remote != nil {
			floor = c.Remote.UpdatedAt
		}
		rec, err := writeResolved(ctx, st, c.RecordID, chosen, source, floor, s.now())
		if err != nil {
			return err
		}

		no := false
		if err := st.History.SetFlags(ctx, c.RecordID, repository.RecordFlags{Conflict: &no}); err != nil {
			return err
		}
		rec.Conflict = false

		if c.Remote != nil {
			if err := st.Shadow.Advance(ctx, c.Remote); err != nil {
				return err
			}
		}

		c.Resolution = req.Resolution
		c.ResolvedAt = s.now()
		if req.Resolution == domain.ResolutionMerged {
			c.Merged = req.Merged.Clone()
		}
		if err := st.Conflicts.Upsert(ctx, []*domain.HistoryConflict{c}); err != nil {
			return err
		}

		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// writeResolved stores chosen under id with an updatedAt past both the local
// copy and floor, the remote version the resolution answers. Anything lower
// would be refused by the remote again.
func writeResolved(ctx context.Context, st *repository.LocalState, id string, chosen *domain.EmotionRecord, source domain.RecordSource, floor, now int64) (*domain.EmotionRecord, error) {
	current, err := st.History.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current == nil {
		rec := chosen.Clone()
		rec.ID = id
		rec.ClearBookkeeping()
		rec.Source = source
		rec.Pending = true
		rec.UpdatedAt = advance(max(rec.UpdatedAt, floor), now)
		return st.History.Upsert(ctx, rec)
	}

	ts := advance(max(current.UpdatedAt, floor), now)

	message := chosen.Message
	emotion := chosen.Emotion
	intensity := chosen.Intensity
	deleted := chosen.Deleted
	important := chosen.Important
	tags := append([]string{}, chosen.TopicTags...)
	followUps := append([]domain.FollowUp{}, chosen.FollowUps...)

	return st.History.Patch(ctx, id, &domain.RecordPatch{
		Message:   &message,
		Emotion:   &emotion,
		Intensity: &intensity,
		UpdatedAt: &ts,
		Deleted:   &deleted,
		Source:    &source,
		TopicTags: &tags,
		Important: &important,
		FollowUps: &followUps,
	})
}
