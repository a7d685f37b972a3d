package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/account-security/internal/repository"
)

// TokenBlacklist keeps revoked token ids in process until they expire.
type TokenBlacklist struct {
	cache *cache.Cache
	now   func() time.Time
}

func NewTokenBlacklist() *TokenBlacklist {
	return &TokenBlacklist{
		cache: cache.New(cache.NoExpiration, 10*time.Minute),
		now:   time.Now,
	}
}

var _ repository.TokenBlacklist = (*TokenBlacklist)(nil)

func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	b.cache.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, found := b.cache.Get(tokenID)
	return found, nil
}
