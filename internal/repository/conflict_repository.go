package repository

import (
	"context"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// ConflictRepository persists conflicts detected during sync until the user
// acts on them. Resolved entries are kept with their resolution set.
type ConflictRepository interface {
	List(ctx context.Context) ([]*domain.HistoryConflict, error)
	Get(ctx context.Context, conflictID string) (*domain.HistoryConflict, error)
	Upsert(ctx context.Context, conflicts []*domain.HistoryConflict) error
	Remove(ctx context.Context, conflictID string) error
	Clear(ctx context.Context) error
	CountUnresolved(ctx context.Context) (int, error)
}

type conflictRepository struct {
	kv storage.KV
}

func NewConflictRepository(kv storage.KV) ConflictRepository {
	return &conflictRepository{kv: kv}
}

func (r *conflictRepository) load(ctx context.Context, kv storage.KV) ([]*domain.HistoryConflict, error) {
	conflicts, err := loadJSON[[]*domain.HistoryConflict](ctx, kv, ConflictsKey)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.HistoryConflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c != nil && c.ID != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *conflictRepository) List(ctx context.Context) ([]*domain.HistoryConflict, error) {
	return r.load(ctx, r.kv)
}

func (r *conflictRepository) Get(ctx context.Context, conflictID string) (*domain.HistoryConflict, error) {
	conflicts, err := r.load(ctx, r.kv)
	if err != nil {
		return nil, err
	}
	for _, c := range conflicts {
		if c.ID == conflictID {
			return c, nil
		}
	}
	return nil, nil
}

// Upsert merges by conflict id. An incoming entry replaces a stored one unless
// the stored one was detected later. Entries for other ids are preserved.
func (r *conflictRepository) Upsert(ctx context.Context, incoming []*domain.HistoryConflict) error {
	if len(incoming) == 0 {
		return nil
	}

	return update(ctx, r.kv, func(kv storage.KV) error {
		conflicts, err := r.load(ctx, kv)
		if err != nil {
			return err
		}

		index := make(map[string]int, len(conflicts))
		for i, c := range conflicts {
			index[c.ID] = i
		}

		for _, c := range incoming {
			if c == nil || c.ID == "" {
				continue
			}
			if i, ok := index[c.ID]; ok {
				if conflicts[i].DetectedAt > c.DetectedAt {
					continue
				}
				conflicts[i] = c
				continue
			}
			index[c.ID] = len(conflicts)
			conflicts = append(conflicts, c)
		}

		return saveJSON(ctx, kv, ConflictsKey, conflicts)
	})
}

func (r *conflictRepository) Remove(ctx context.Context, conflictID string) error {
	return update(ctx, r.kv, func(kv storage.KV) error {
		conflicts, err := r.load(ctx, kv)
		if err != nil {
			return err
		}

		out := conflicts[:0]
		for _, c := range conflicts {
			if c.ID != conflictID {
				out = append(out, c)
			}
		}
		return saveJSON(ctx, kv, ConflictsKey, out)
	})
}

func (r *conflictRepository) Clear(ctx context.Context) error {
	return saveJSON(ctx, r.kv, ConflictsKey, []*domain.HistoryConflict{})
}

func (r *conflictRepository) CountUnresolved(ctx context.Context) (int, error) {
	conflicts, err := r.load(ctx, r.kv)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range conflicts {
		if !c.Resolved() {
			n++
		}
	}
	return n, nil
}
