// Package rediscache keeps short-lived auth state in Redis.
package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/session"
)

const denylistPrefix = "academia:denied:"

// Denylist records deactivated principals until every token issued to them has expired.
type Denylist struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var (
	_ session.Denylist  = (*Denylist)(nil)
	_ directory.Revoker = (*Denylist)(nil)
)

// NewClient connects to the configured Redis server and pings it.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", conf.Redis.Address)
	}
	return client, nil
}

// NewDenylist keeps entries for ttl, which should be the refresh token lifetime.
func NewDenylist(client *redis.Client, ttl time.Duration) *Denylist {
	return &Denylist{client: client, ttl: ttl, prefix: denylistPrefix}
}

func (d *Denylist) key(principalID string) string {
	return d.prefix + principalID
}

func (d *Denylist) Deny(ctx context.Context, principalID string) error {
	if err := d.client.Set(ctx, d.key(principalID), time.Now().UTC().Unix(), d.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (d *Denylist) Allow(ctx context.Context, principalID string) error {
	if err := d.client.Del(ctx, d.key(principalID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (d *Denylist) IsDenied(ctx context.Context, principalID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(principalID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}
