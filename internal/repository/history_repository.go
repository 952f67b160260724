package repository

import (
	"context"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"

	"github.com/google/uuid"
)

// RecordFlags changes bookkeeping only. Nil fields are left untouched.
type RecordFlags struct {
	LocalOnly       *bool
	Pending         *bool
	Conflict        *bool
	ServerConfirmed *bool
}

type HistoryRepository interface {
	Get(ctx context.Context, id string) (*domain.EmotionRecord, error)
	List(ctx context.Context) ([]*domain.EmotionRecord, error)
	Upsert(ctx context.Context, record *domain.EmotionRecord) (*domain.EmotionRecord, error)
	Patch(ctx context.Context, id string, patch *domain.RecordPatch) (*domain.EmotionRecord, error)
	Create(ctx context.Context, req *domain.CreateRecordRequest) (*domain.EmotionRecord, error)
	SoftDelete(ctx context.Context, id string) (*domain.EmotionRecord, error)
	SetFlags(ctx context.Context, id string, flags RecordFlags) error
}

type historyRepository struct {
	kv  storage.KV
	now Clock
}

func NewHistoryRepository(kv storage.KV, now Clock) HistoryRepository {
	if now == nil {
		now = SystemClock
	}
	return &historyRepository{kv: kv, now: now}
}

func (r *historyRepository) load(ctx context.Context, kv storage.KV) ([]*domain.EmotionRecord, error) {
	records, err := loadJSON[[]*domain.EmotionRecord](ctx, kv, HistoryKey)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if rec != nil && rec.ID != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *historyRepository) Get(ctx context.Context, id string) (*domain.EmotionRecord, error) {
	records, err := r.load(ctx, r.kv)
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return nil, nil
}

// List returns every record including tombstones.
func (r *historyRepository) List(ctx context.Context) ([]*domain.EmotionRecord, error) {
	records, err := r.load(ctx, r.kv)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.EmotionRecord{}
	}
	return records, nil
}

// Upsert stores record as given, except that updatedAt never moves backwards
// for an id that is already stored.
func (r *historyRepository) Upsert(ctx context.Context, record *domain.EmotionRecord) (*domain.EmotionRecord, error) {
	stored := record.Clone()

	err := update(ctx, r.kv, func(kv storage.KV) error {
		records, err := r.load(ctx, kv)
		if err != nil {
			return err
		}

		if i := indexOf(records, stored.ID); i >= 0 {
			if records[i].UpdatedAt > stored.UpdatedAt {
				stored.UpdatedAt = records[i].UpdatedAt
			}
			records[i] = stored
		} else {
			records = append(records, stored)
		}

		return saveJSON(ctx, kv, HistoryKey, records)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Patch applies a partial update. The resulting updatedAt is strictly greater
// than the stored one: a supplied (or clock) value that is not gets bumped to
// stored+1.
func (r *historyRepository) Patch(ctx context.Context, id string, patch *domain.RecordPatch) (*domain.EmotionRecord, error) {
	var result *domain.EmotionRecord

	err := update(ctx, r.kv, func(kv storage.KV) error {
		records, err := r.load(ctx, kv)
		if err != nil {
			return err
		}

		i := indexOf(records, id)
		if i < 0 {
			return ErrRecordNotFound
		}

		prev := records[i]
		next := prev.Clone()
		patch.Apply(next)

		ts := r.now()
		if patch.UpdatedAt != nil {
			ts = *patch.UpdatedAt
		}
		if ts <= prev.UpdatedAt {
			ts = prev.UpdatedAt + 1
		}
		next.UpdatedAt = ts
		if next.Rev > 0 {
			next.Rev++
		}
		next.Pending = true

		records[i] = next
		result = next
		return saveJSON(ctx, kv, HistoryKey, records)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *historyRepository) Create(ctx context.Context, req *domain.CreateRecordRequest) (*domain.EmotionRecord, error) {
	now := r.now()
	source := req.Source
	if source == "" {
		source = domain.SourceLocal
	}

	record := &domain.EmotionRecord{
		ID:        uuid.New().String(),
		Message:   req.Message,
		Emotion:   req.Emotion,
		Intensity: req.Intensity,
		CreatedAt: now,
		UpdatedAt: now,
		Rev:       1,
		Source:    source,
		LocalOnly: true,
		Pending:   true,
		TopicTags: dedupe(req.TopicTags),
		Choices:   req.Choices,
	}

	err := update(ctx, r.kv, func(kv storage.KV) error {
		records, err := r.load(ctx, kv)
		if err != nil {
			return err
		}
		records = append(records, record)
		return saveJSON(ctx, kv, HistoryKey, records)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SoftDelete sets the tombstone. The record stays in the list so the deletion
// syncs.
func (r *historyRepository) SoftDelete(ctx context.Context, id string) (*domain.EmotionRecord, error) {
	deleted := true
	return r.Patch(ctx, id, &domain.RecordPatch{Deleted: &deleted})
}

func (r *historyRepository) SetFlags(ctx context.Context, id string, flags RecordFlags) error {
	return update(ctx, r.kv, func(kv storage.KV) error {
		records, err := r.load(ctx, kv)
		if err != nil {
			return err
		}

		i := indexOf(records, id)
		if i < 0 {
			return nil
		}

		rec := records[i]
		if flags.LocalOnly != nil {
			rec.LocalOnly = *flags.LocalOnly
		}
		if flags.Pending != nil {
			rec.Pending = *flags.Pending
		}
		if flags.Conflict != nil {
			rec.Conflict = *flags.Conflict
		}
		if flags.ServerConfirmed != nil {
			rec.ServerConfirmed = *flags.ServerConfirmed
		}

		return saveJSON(ctx, kv, HistoryKey, records)
	})
}

func indexOf(records []*domain.EmotionRecord, id string) int {
	for i, rec := range records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
