package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/account-security/internal/repository"
)

const blacklistPrefix = "blacklist:"

type tokenBlacklist struct {
	client goredis.UniversalClient
	now    func() time.Time
}

// NewTokenBlacklist stores revoked token ids as keys that expire with the token.
func NewTokenBlacklist(client goredis.UniversalClient) repository.TokenBlacklist {
	return &tokenBlacklist{client: client, now: time.Now}
}

func (b *tokenBlacklist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blacklistPrefix+tokenID, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *tokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}
