package contacts

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// defaultDNCKey is the set the compliance screens maintain when importing
// DNC numbers.
const defaultDNCKey = "compliance:dnc"

// RedisDNC checks DNC membership against a Redis set. Membership reads are
// on the hot dialing path, so they must stay a single round trip.
type RedisDNC struct {
	rdb *redis.Client
	key string
}

func NewRedisDNC(rdb *redis.Client, key string) *RedisDNC {
	if key == "" {
		key = defaultDNCKey
	}
	return &RedisDNC{rdb: rdb, key: key}
}

func (d *RedisDNC) IsOnDNC(ctx context.Context, phoneNumber string) (bool, error) {
	if d.rdb == nil {
		return false, errors.New("contacts: redis client is nil")
	}
	if phoneNumber == "" {
		return false, errors.New("contacts: phone number required")
	}
	return d.rdb.SIsMember(ctx, d.key, phoneNumber).Result()
}
