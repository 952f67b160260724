package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// Keys of the persisted local state.
const (
	HistoryKey   = "imotara.history.v1"
	LedgerKey    = "imotara.pushLedger.v1"
	TokenKey     = "imotara.syncToken.v1"
	ConflictsKey = "imotara.pendingConflicts.v1"
	ShadowKey    = "imotara.syncShadow.v1"
)

var ErrRecordNotFound = errors.New("record not found")

// Clock returns the current time in epoch milliseconds.
type Clock func() int64

func SystemClock() int64 {
	return time.Now().UnixMilli()
}

// LocalState groups the client-side repositories that share one KV.
type LocalState struct {
	History   HistoryRepository
	Ledger    LedgerRepository
	Shadow    ShadowRepository
	Token     TokenRepository
	Conflicts ConflictRepository
}

func NewLocalState(kv storage.KV, now Clock) *LocalState {
	if now == nil {
		now = SystemClock
	}
	return &LocalState{
		History:   NewHistoryRepository(kv, now),
		Ledger:    NewLedgerRepository(kv, now),
		Shadow:    NewShadowRepository(kv),
		Token:     NewTokenRepository(kv),
		Conflicts: NewConflictRepository(kv),
	}
}

// loadJSON decodes the value under key. Missing keys, unavailable storage and
// corrupt JSON all read as the zero value.
func loadJSON[T any](ctx context.Context, kv storage.KV, key string) (T, error) {
	var zero T

	data, err := kv.Get(ctx, key)
	if err != nil {
		if storage.IsUnavailable(err) {
			return zero, nil
		}
		return zero, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) == 0 {
		return zero, nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Printf("[Storage] corrupt value under %s, treating as empty: %v", key, err)
		return zero, nil
	}
	return v, nil
}

func saveJSON(ctx context.Context, kv storage.KV, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		if storage.IsUnavailable(err) {
			return nil
		}
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// update runs fn as one transaction when kv supports it. Writes against an
// unavailable backend are dropped silently.
func update(ctx context.Context, kv storage.KV, fn func(kv storage.KV) error) error {
	err := storage.Update(ctx, kv, fn)
	if storage.IsUnavailable(err) {
		return nil
	}
	return err
}
