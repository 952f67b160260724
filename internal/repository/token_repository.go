package repository

import (
	"context"
	"log"
	"strconv"

	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// TokenRepository persists the incremental sync token. It is stored as a
// decimal string.
type TokenRepository interface {
	Get(ctx context.Context) (*int64, error)
	Set(ctx context.Context, token int64) error
}

type tokenRepository struct {
	kv storage.KV
}

func NewTokenRepository(kv storage.KV) TokenRepository {
	return &tokenRepository{kv: kv}
}

func (r *tokenRepository) Get(ctx context.Context) (*int64, error) {
	raw, err := loadJSON[string](ctx, r.kv, TokenKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	token, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("[Storage] ignoring malformed sync token %q", raw)
		return nil, nil
	}
	return &token, nil
}

func (r *tokenRepository) Set(ctx context.Context, token int64) error {
	return saveJSON(ctx, r.kv, TokenKey, strconv.FormatInt(token, 10))
}
