package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRetryInterval = 50 * time.Millisecond

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndExtend resets the expiry of KEYS[1] to ARGV[2] milliseconds only
// while it still holds ARGV[1].
var compareAndExtend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLockLost is the cause attached to a holder's context when its lease
// could not be renewed and another process may now own the section.
var ErrLockLost = errors.New("coordination: lock lease lost")

// RedisLocker is a Locker backed by Redis SET NX PX. While fn runs the lease
// is renewed every ttl/3, so a holder blocked on slow vendor calls keeps the
// section for as long as it works. If the holder dies the lock expires
// after ttl. If a renewal finds the lock gone, fn's context is cancelled
// with ErrLockLost.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisLocker creates a RedisLocker whose keys start with prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, retryInterval: defaultRetryInterval}
}

func (l *RedisLocker) WithLock(ctx context.Context, keyspace Keyspace, key string, fn func(context.Context) error) error {
	name := l.prefix + "lock:" + lockName(keyspace, key)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	holdCtx, cancelHold := context.WithCancelCause(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		l.renew(holdCtx, name, token, cancelHold)
	}()

	defer func() {
		cancelHold(nil)
		<-renewed
		// Release with a fresh context so a cancelled caller still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = compareAndDelete.Run(releaseCtx, l.client, []string{name}, token).Err()
	}()
	return fn(holdCtx)
}

// renew extends the lease until ctx is done. A renewal that finds another
// token, or no key at all, cancels the holder.
func (l *RedisLocker) renew(ctx context.Context, name, token string, cancel context.CancelCauseFunc) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		extended, err := compareAndExtend.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int()
		if ctx.Err() != nil {
			return
		}
		if err == nil && extended == 0 {
			cancel(ErrLockLost)
			return
		}
		// A transport error is retried on the next tick; the remaining
		// lease still covers two more attempts.
	}
}

// RedisOnceSet is an OnceSet backed by SET NX EX.
type RedisOnceSet struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisOnceSet creates a RedisOnceSet whose keys start with prefix.
func NewRedisOnceSet(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisOnceSet {
	return &RedisOnceSet{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisOnceSet) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+"once:"+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// RedisInFlight is an InFlight backed by one key per phone holding the
// current call id.
type RedisInFlight struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisInFlight creates a RedisInFlight whose keys start with prefix.
func NewRedisInFlight(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisInFlight {
	return &RedisInFlight{client: client, prefix: prefix, ttl: ttl}
}

func (f *RedisInFlight) key(phone string) string {
	return f.prefix + "inflight:" + phone
}

func (f *RedisInFlight) Register(ctx context.Context, phone, callID string) (bool, error) {
	key := f.key(phone)
	ok, err := f.client.SetNX(ctx, key, callID, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("register %s: %w", phone, err)
	}
	if ok {
		return true, nil
	}
	return f.IsCurrent(ctx, phone, callID)
}

func (f *RedisInFlight) IsCurrent(ctx context.Context, phone, callID string) (bool, error) {
	holder, err := f.client.Get(ctx, f.key(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read in-flight %s: %w", phone, err)
	}
	return holder == callID, nil
}

func (f *RedisInFlight) Release(ctx context.Context, phone, callID string) error {
	if err := compareAndDelete.Run(ctx, f.client, []string{f.key(phone)}, callID).Err(); err != nil {
		return fmt.Errorf("release in-flight %s: %w", phone, err)
	}
	return nil
}

var (
	_ Locker   = (*RedisLocker)(nil)
	_ OnceSet  = (*RedisOnceSet)(nil)
	_ InFlight = (*RedisInFlight)(nil)
)
