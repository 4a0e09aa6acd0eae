package recycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// LocalLocker - блокировка кошелька внутри процесса
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*memberLock
}

type memberLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*memberLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, memberID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[memberID]
	if !ok {
		lock = &memberLock{ch: make(chan struct{}, 1)}
		l.locks[memberID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.ch
				l.release(memberID, lock)
			})
		}, nil
	case <-ctx.Done():
		l.release(memberID, lock)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(memberID string, lock *memberLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, memberID)
	}
}

// RedisLocker - блокировка кошелька для нескольких экземпляров сервиса
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func NewRedisLocker(ctx context.Context, addr string, user string, pwd string, ttl time.Duration) (*RedisLocker, error) {
	if addr == "" {
		return nil, fmt.Errorf("config redis.addr is not set")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Username:    user,
		Password:    pwd,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}
	return &RedisLocker{client, ttl}, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func lockKey(memberID string) string {
	return "recycle:wallet-lock:" + memberID
}

// Lock ждет освобождения ключа. TTL снимает блокировку упавшего экземпляра
func (r *RedisLocker) Lock(ctx context.Context, memberID string) (func(), error) {
	key := lockKey(memberID)
	token := uuid.NewString()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return func() {
		// ctx запроса может быть уже отменен
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(uctx, r.client, []string{key}, token).Err()
	}, nil
}
