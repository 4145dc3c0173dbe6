package services

import (
	"context"
	"errors"
	"time"

	"blogsphere/internal/apperrors"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Claims access token 的载荷，id 为用户 ID
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// RevocationList 记录登出后仍未过期的 token
type RevocationList interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type TokenService struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationList
	now     func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, revoked RevocationList) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue 签发 HS256 token
func (s *TokenService) Issue(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Verify 校验 token 并返回用户 ID。无效或已注销的 token 返回 403。
func (s *TokenService) Verify(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", apperrors.Forbidden("Access token is invalid")
	}
	revoked, err := s.revoked.IsRevoked(ctx, token)
	if err != nil {
		return "", apperrors.Store(err)
	}
	if revoked {
		return "", apperrors.Forbidden("Access token has been revoked")
	}
	return claims.ID, nil
}

// Revoke 注销 token，直到它自然过期
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return apperrors.Forbidden("Access token is invalid")
	}
	ttl := s.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Revoke(ctx, token, ttl); err != nil {
		return apperrors.Store(err)
	}
	return nil
}

// RedisRevocationList 多实例共享的黑名单
type RedisRevocationList struct {
	client *redis.Client
}

func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return l.client.Set(ctx, "blacklist:"+token, "1", ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := l.client.Get(ctx, "blacklist:"+token).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LocalRevocationList 未配置 Redis 时的单实例黑名单。
// 独立于列表缓存，容量不限，条目最长保留一个 token 有效期。
type LocalRevocationList struct {
	entries *expirable.LRU[string, time.Time]
	now     func() time.Time
}

func NewLocalRevocationList(maxTTL time.Duration) *LocalRevocationList {
	return &LocalRevocationList{
		entries: expirable.NewLRU[string, time.Time](0, nil, maxTTL),
		now:     time.Now,
	}
}

func (l *LocalRevocationList) Revoke(_ context.Context, token string, ttl time.Duration) error {
	l.entries.Add("blacklist:"+token, l.now().Add(ttl))
	return nil
}

func (l *LocalRevocationList) IsRevoked(_ context.Context, token string) (bool, error) {
	expiresAt, ok := l.entries.Get("blacklist:" + token)
	if !ok {
		return false, nil
	}
	return l.now().Before(expiresAt), nil
}
