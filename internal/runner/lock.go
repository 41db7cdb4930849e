package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/redis"
)

// releaseScript deletes the lock only when this holder still owns it, so a
// pass that outlived its TTL cannot release a newer holder's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// PassLock is an advisory per-feature lock around one cron pass. Ledger
// idempotency keeps overlapping passes correct; the lock just keeps them from
// doubling the provider bill.
type PassLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

func NewPassLock(client *redis.Client, feature model.FeatureType, ttl time.Duration) *PassLock {
	return &PassLock{
		client: client,
		key:    redis.CronLockKey(string(feature)),
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire returns false when another pass of the same feature holds the
// lock. Non-blocking.
func (l *PassLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
}

func (l *PassLock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Err()
}
