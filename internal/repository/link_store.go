package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"shorturl-service/internal/model"

	"gorm.io/gorm"
)

// GormLinkStore 基于 gorm 的短链接存储
type GormLinkStore struct {
	baseRepository
	now func() time.Time
}

func NewLinkStore(db *gorm.DB) *GormLinkStore {
	return &GormLinkStore{baseRepository: baseRepository{db: db}, now: time.Now}
}

// HashURL 长链接的 SHA256，用于按长链接去重查询
func HashURL(longURL string) string {
	hash := sha256.Sum256([]byte(longURL))
	return hex.EncodeToString(hash[:])
}

// FindByLongURL 按长链接查询，返回最早创建的一条
func (r *GormLinkStore) FindByLongURL(ctx context.Context, longURL string) (*model.Link, error) {
	var link model.Link
	err := r.getDB(ctx).
		Where("long_url_hash = ? AND long_url = ?", HashURL(longURL), longURL).
		Order("id ASC").
		First(&link).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find link by long url: %w", err)
	}
	return &link, nil
}

func (r *GormLinkStore) FindByShortURL(ctx context.Context, shortURL string) (*model.Link, error) {
	var link model.Link
	if err := r.getDB(ctx).Where("short_url = ?", shortURL).First(&link).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find link by short url: %w", err)
	}
	return &link, nil
}

// Insert 插入短链接，短链接已存在时返回 ErrDuplicateShortURL
func (r *GormLinkStore) Insert(ctx context.Context, link *model.Link) error {
	if link.LongURLHash == "" {
		link.LongURLHash = HashURL(link.LongURL)
	}
	if link.CreatedOn.IsZero() {
		link.CreatedOn = r.now()
	}
	if err := r.getDB(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateShortURL, link.ShortURL)
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// SetRequestLimit 只更新未删除的记录
func (r *GormLinkStore) SetRequestLimit(ctx context.Context, shortURL string, limit int64) (bool, error) {
	result := r.getDB(ctx).Model(&model.Link{}).
		Where("short_url = ? AND is_deleted = ?", shortURL, false).
		Update("request_limit", limit)
	if result.Error != nil {
		return false, fmt.Errorf("failed to set request limit: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SoftDelete 标记删除，记录保留用于审计
func (r *GormLinkStore) SoftDelete(ctx context.Context, shortURL string) (bool, error) {
	result := r.getDB(ctx).Model(&model.Link{}).
		Where("short_url = ? AND is_deleted = ?", shortURL, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_on": r.now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to soft delete link: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
