package repository

import (
	"context"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// LedgerRepository tracks, per record id, the updatedAt last acknowledged by
// the remote.
type LedgerRepository interface {
	Load(ctx context.Context) (map[string]int64, error)
	ComputePending(ctx context.Context, records []*domain.EmotionRecord) ([]*domain.EmotionRecord, error)
	MarkPushed(ctx context.Context, ids []string, records []*domain.EmotionRecord) error
}

type ledgerRepository struct {
	kv  storage.KV
	now Clock
}

func NewLedgerRepository(kv storage.KV, now Clock) LedgerRepository {
	if now == nil {
		now = SystemClock
	}
	return &ledgerRepository{kv: kv, now: now}
}

func (r *ledgerRepository) Load(ctx context.Context) (map[string]int64, error) {
	ledger, err := loadJSON[map[string]int64](ctx, r.kv, LedgerKey)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = make(map[string]int64)
	}
	return ledger, nil
}

// ComputePending returns the records whose version is strictly greater than
// their ledger entry. It does not modify the ledger.
func (r *ledgerRepository) ComputePending(ctx context.Context, records []*domain.EmotionRecord) ([]*domain.EmotionRecord, error) {
	ledger, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*domain.EmotionRecord, 0)
	for _, rec := range records {
		if rec.Version() > ledger[rec.ID] {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

// MarkPushed records each id at the version of the matching record, falling
// back to the current time when the record is not in records.
func (r *ledgerRepository) MarkPushed(ctx context.Context, ids []string, records []*domain.EmotionRecord) error {
	if len(ids) == 0 {
		return nil
	}

	byID := make(map[string]*domain.EmotionRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	return update(ctx, r.kv, func(kv storage.KV) error {
		ledger, err := loadJSON[map[string]int64](ctx, kv, LedgerKey)
		if err != nil {
			return err
		}
		if ledger == nil {
			ledger = make(map[string]int64)
		}

		for _, id := range ids {
			v := int64(0)
			if rec, ok := byID[id]; ok {
				v = rec.Version()
			}
			if v == 0 {
				v = r.now()
			}
			ledger[id] = v
		}

		return saveJSON(ctx, kv, LedgerKey, ledger)
	})
}
