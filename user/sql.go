package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User is the persisted local user.
type User struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OpenID    string `gorm:"column:open_id;size:64;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (User) TableName() string { return "users" }

// MySQLConfig holds connection pool settings.
type MySQLConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	// Logger receives slow queries and driver warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// OpenMySQL opens a pooled gorm connection.
func OpenMySQL(cfg MySQLConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("user: mysql dsn required")
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 2 * time.Second
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         newGormLogger(cfg.Logger, slow),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func newGormLogger(l *slog.Logger, slow time.Duration) logger.Interface {
	if l == nil {
		l = slog.Default()
	}
	return logger.New(slog.NewLogLogger(l.Handler(), slog.LevelWarn), logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// SQLStore resolves users against a relational database.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates or updates the users table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResolveOrCreateLocalUser returns the local ID for externalID, inserting
// a row on first sight. A concurrent insert of the same identity loses on
// the unique index and re-reads the winner's row.
func (s *SQLStore) ResolveOrCreateLocalUser(ctx context.Context, externalID string) (string, error) {
	if !validExternalID(externalID) {
		return "", ErrInvalidExternalID
	}

	var u User
	err := s.db.WithContext(ctx).
		Where("open_id = ?", externalID).
		FirstOrCreate(&u, User{OpenID: externalID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = s.db.WithContext(ctx).Where("open_id = ?", externalID).First(&u).Error
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return strconv.FormatUint(u.ID, 10), nil
}
