package identity

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

// RepoLookup adapts a UserRepository to auth.UserLookup.
type RepoLookup struct {
	users UserRepository
}

func NewLookup(users UserRepository) *RepoLookup {
	return &RepoLookup{users: users}
}

func (l *RepoLookup) FindAccount(ctx context.Context, id string) (*auth.Account, error) {
	u, err := l.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Account(), nil
}

// Cache is the subset of the redis client used for account caching.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const accountKeyPrefix = "records:account:"

type cachedAccount struct {
	ID   string    `json:"id"`
	Role auth.Role `json:"role"`
}

// CachedLookup serves accounts from redis and falls back to next on a miss.
// Redis failures are logged and bypassed. Unknown users are never cached.
// A deleted user or changed role stays visible until its entry expires, so
// the server keeps ttl short and caps it at ten minutes.
type CachedLookup struct {
	next   auth.UserLookup
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedLookup(next auth.UserLookup, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedLookup {
	return &CachedLookup{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (l *CachedLookup) FindAccount(ctx context.Context, id string) (*auth.Account, error) {
	key := accountKeyPrefix + id

	raw, err := l.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ca cachedAccount
		if jerr := json.Unmarshal(raw, &ca); jerr == nil && ca.ID == id {
			return &auth.Account{ID: ca.ID, Role: ca.Role}, nil
		}
		l.logger.Warn().Str("key", key).Msg("discarding malformed cached account")
	case !errors.Is(err, redis.Nil):
		l.logger.Warn().Err(err).Str("key", key).Msg("account cache read failed")
	}

	acct, err := l.next.FindAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedAccount{ID: acct.ID, Role: acct.Role})
	if err == nil {
		err = l.cache.Set(ctx, key, payload, l.ttl).Err()
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("account cache write failed")
	}
	return acct, nil
}
