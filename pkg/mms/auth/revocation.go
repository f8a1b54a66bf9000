package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationStore remembers terminated sessions until their tokens expire.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, userID uint, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// GormRevocationStore keeps revoked sessions in the database
type GormRevocationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRevocationStore(db *gorm.DB) *GormRevocationStore {
	return &GormRevocationStore{db: db, now: time.Now}
}

func (s *GormRevocationStore) Revoke(ctx context.Context, sessionID string, userID uint, expiresAt time.Time) error {
	rec := models.RevokedSession{ID: sessionID, UserID: userID, ExpiresAt: expiresAt}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

func (s *GormRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RevokedSession{}).Where("id = ?", sessionID).Count(&count).Error
	return count > 0, err
}

// Purge drops entries whose tokens have expired anyway
func (s *GormRevocationStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.RevokedSession{})
	return res.RowsAffected, res.Error
}

// RedisRevocationStore keeps revoked sessions in Redis with a TTL matching
// the remaining token lifetime.
type RedisRevocationStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb, now: time.Now}
}

func revokedKey(sessionID string) string {
	return "mms:revoked_session:" + sessionID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, sessionID string, userID uint, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(sessionID), userID, ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
