package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	uuid "github.com/satori/go.uuid"

	"github.com/divanjapones/notifier"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still holds our token.
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var _ notifier.Locker = (*Locker)(nil)

// Locker is a TTL lock shared by every notifier process using the same redis.
// The TTL is refreshed while the lock is held, so it only bounds how long a
// crashed holder blocks the others.
type Locker struct {
	client *goredis.Client
}

func NewLocker(addr, password string) *Locker {
	return &Locker{
		client: goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Ping checks the connection
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewV4().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquire lock %s", key)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, ttl, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			// the caller's context may already be canceled
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
	return release, true, nil
}

// keepAlive resets the TTL every third of it until stop is closed or the lock is lost.
func (l *Locker) keepAlive(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := ttl / 3
	if every < time.Millisecond {
		every = time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int()
			cancel()
			if errors.Is(err, goredis.ErrClosed) || (err == nil && n == 0) {
				return
			}
		}
	}
}

func (l *Locker) Close() error {
	return l.client.Close()
}
