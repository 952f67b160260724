package repository

import (
	"context"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// ShadowRepository keeps the last-synced base of every record, the common
// ancestor for three-way comparison.
type ShadowRepository interface {
	Load(ctx context.Context) (map[string]domain.ShadowEntry, error)
	Get(ctx context.Context, id string) (*domain.ShadowEntry, error)
	Advance(ctx context.Context, records ...*domain.EmotionRecord) error
}

type shadowRepository struct {
	kv storage.KV
}

func NewShadowRepository(kv storage.KV) ShadowRepository {
	return &shadowRepository{kv: kv}
}

func (r *shadowRepository) Load(ctx context.Context) (map[string]domain.ShadowEntry, error) {
	shadow, err := loadJSON[map[string]domain.ShadowEntry](ctx, r.kv, ShadowKey)
	if err != nil {
		return nil, err
	}
	if shadow == nil {
		shadow = make(map[string]domain.ShadowEntry)
	}
	return shadow, nil
}

func (r *shadowRepository) Get(ctx context.Context, id string) (*domain.ShadowEntry, error) {
	shadow, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := shadow[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (r *shadowRepository) Advance(ctx context.Context, records ...*domain.EmotionRecord) error {
	if len(records) == 0 {
		return nil
	}

	return update(ctx, r.kv, func(kv storage.KV) error {
		shadow, err := loadJSON[map[string]domain.ShadowEntry](ctx, kv, ShadowKey)
		if err != nil {
			return err
		}
		if shadow == nil {
			shadow = make(map[string]domain.ShadowEntry)
		}

		for _, rec := range records {
			if rec == nil {
				continue
			}
			shadow[rec.ID] = domain.ShadowOf(rec)
		}

		return saveJSON(ctx, kv, ShadowKey, shadow)
	})
}
