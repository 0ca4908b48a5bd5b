package integration

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[models.IntegrationKind][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[models.IntegrationKind][]byte)}
}

// Load returns a copy of the stored bytes or ErrNotFound.
func (m *MemoryBackend) Load(_ context.Context, kind models.IntegrationKind) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[kind]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save replaces the stored bytes.
func (m *MemoryBackend) Save(_ context.Context, kind models.IntegrationKind, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[kind] = append([]byte(nil), data...)
	return nil
}

// Create stores data unless a record already exists.
func (m *MemoryBackend) Create(_ context.Context, kind models.IntegrationKind, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[kind]; ok {
		return false, nil
	}
	m.records[kind] = append([]byte(nil), data...)
	return true, nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// redisCommands is the subset of *redis.Client used by RedisBackend.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisConfig holds connection parameters for the shared store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	TLSEnabled  bool
	KeyPrefix   string
}

// RedisBackend stores one JSON value per kind. SET replaces the whole value
// in a single command.
type RedisBackend struct {
	client redisCommands
	prefix string
}

// NewRedisBackend connects to Redis and pings it.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisBackend(client, cfg.KeyPrefix), nil
}

func newRedisBackend(client redisCommands, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "opsstatus:integration:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Load fetches the value for kind.
func (r *RedisBackend) Load(ctx context.Context, kind models.IntegrationKind) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+string(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the value for kind without expiry.
func (r *RedisBackend) Save(ctx context.Context, kind models.IntegrationKind, data []byte) error {
	return r.client.Set(ctx, r.prefix+string(kind), data, 0).Err()
}

// Create sets the value for kind with SET NX.
func (r *RedisBackend) Create(ctx context.Context, kind models.IntegrationKind, data []byte) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+string(kind), data, 0).Result()
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// integrationRecord is the SQL row holding one encoded config.
type integrationRecord struct {
	Kind      string `gorm:"primaryKey;size:32"`
	Payload   []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (integrationRecord) TableName() string { return "integration_configs" }

// SQLBackend stores one row per kind in SQLite through gorm.
type SQLBackend struct {
	db *gorm.DB
}

// NewSQLiteBackend opens (and migrates) the SQLite database at path.
func NewSQLiteBackend(path string) (*SQLBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLBackend(db)
}

// NewSQLBackend uses an existing gorm handle and migrates the table.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&integrationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate integration_configs: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

// Load reads the row for kind.
func (s *SQLBackend) Load(ctx context.Context, kind models.IntegrationKind) ([]byte, error) {
	var rec integrationRecord
	err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Payload, nil
}

// Save upserts the row for kind in one statement.
func (s *SQLBackend) Save(ctx context.Context, kind models.IntegrationKind, data []byte) error {
	rec := integrationRecord{Kind: string(kind), Payload: data, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
}

// Create inserts the row for kind unless one exists.
func (s *SQLBackend) Create(ctx context.Context, kind models.IntegrationKind, data []byte) (bool, error) {
	rec := integrationRecord{Kind: string(kind), Payload: data, UpdatedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Close closes the underlying connection pool.
func (s *SQLBackend) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
