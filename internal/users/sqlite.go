package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	LoginName    string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userModel) TableName() string {
	return "users"
}

// SQLStore は gorm 経由で SQLite にユーザーを保存します。
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite は SQLite ファイルを開き、テーブルを作成して SQLStore を返します。
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("users: open sqlite: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore は既存の接続から SQLStore を作成します。
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&userModel{}); err != nil {
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close は接続を閉じます。
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindByLoginName はログイン名でユーザーを検索します。
func (s *SQLStore) FindByLoginName(ctx context.Context, loginName string) (*User, error) {
	return s.first(ctx, "login_name = ?", loginName)
}

// FindByID はIDでユーザーを検索します。
func (s *SQLStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.first(ctx, "id = ?", id)
}

// Create はユーザーを登録します。ユニーク制約違反は ErrDuplicateAccount になります。
func (s *SQLStore) Create(ctx context.Context, loginName, displayName, passwordHash string) (*User, error) {
	if err := validateNew(loginName, passwordHash); err != nil {
		return nil, err
	}

	user := newUser(loginName, displayName, passwordHash)
	model := userModel{
		ID:           user.ID,
		Name:         user.Name,
		LoginName:    user.LoginName,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userModel{}).Where("login_name = ?", loginName).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateAccount
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("users: insert: %w", err)
	}
	return user, nil
}

func (s *SQLStore) first(ctx context.Context, query string, arg any) (*User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: query: %w", err)
	}
	return &User{
		ID:           model.ID,
		Name:         model.Name,
		LoginName:    model.LoginName,
		PasswordHash: model.PasswordHash,
		CreatedAt:    model.CreatedAt,
	}, nil
}
