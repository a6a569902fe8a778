package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshBlacklistPrefix = "auth:refresh:blacklist:"
	loginRatePrefix        = "rate:login:"
	loginLockPrefix        = "lock:login:"
	loginFailPrefix        = "lock:login:fail:"
)

// RedisSessions 在 Redis 中保存刷新令牌黑名单与登录限流状态。
type RedisSessions struct {
	rdb           redis.Cmdable
	lockThreshold int
	lockTTL       time.Duration
	now           func() time.Time
}

// NewRedisSessions 构造 RedisSessions。
func NewRedisSessions(rdb redis.Cmdable, lockThreshold int, lockTTL time.Duration) *RedisSessions {
	return &RedisSessions{rdb: rdb, lockThreshold: lockThreshold, lockTTL: lockTTL, now: time.Now}
}

// IsRevoked 判断刷新令牌是否已被吊销。
func (s *RedisSessions) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.rdb.Get(ctx, refreshBlacklistPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// Revoke 吊销刷新令牌直到其原本的过期时间。
func (s *RedisSessions) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.rdb.Set(ctx, refreshBlacklistPrefix+jti, "revoked", ttl).Err()
}

// HitLogin 对 IP+用户名 的小时窗口计数，返回当前次数。
func (s *RedisSessions) HitLogin(ctx context.Context, ip, username string) (int64, error) {
	key := loginRatePrefix + ip + ":" + normalize(username) + ":" + s.now().UTC().Format("2006010215")
	return incrWithTTL(ctx, s.rdb, key, time.Hour)
}

// Locked 判断账号是否处于锁定期。
func (s *RedisSessions) Locked(ctx context.Context, username string) bool {
	ttl, err := s.rdb.TTL(ctx, loginLockPrefix+normalize(username)).Result()
	return err == nil && ttl > 0
}

// RecordFailure 记录一次失败登录，达到阈值后锁定账号。
func (s *RedisSessions) RecordFailure(ctx context.Context, username string) error {
	username = normalize(username)
	count, err := incrWithTTL(ctx, s.rdb, loginFailPrefix+username, s.lockTTL)
	if err != nil {
		return err
	}
	if s.lockThreshold > 0 && count >= int64(s.lockThreshold) {
		return s.rdb.Set(ctx, loginLockPrefix+username, "1", s.lockTTL).Err()
	}
	return nil
}

// ClearFailures 登录成功后清理失败计数。
func (s *RedisSessions) ClearFailures(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, loginFailPrefix+normalize(username)).Err()
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func incrWithTTL(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (int64, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = rdb.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
