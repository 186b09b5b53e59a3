// Package repository 短链接与访问统计的持久化实现
package repository

import (
	"context"
	"errors"

	"shorturl-service/internal/model"
)

var (
	// ErrDuplicateShortURL 短链接唯一索引冲突
	ErrDuplicateShortURL = errors.New("short url already exists")
)

// LinkStore 短链接存储，查询不到时返回 (nil, nil)
type LinkStore interface {
	FindByLongURL(ctx context.Context, longURL string) (*model.Link, error)
	FindByShortURL(ctx context.Context, shortURL string) (*model.Link, error)
	Insert(ctx context.Context, link *model.Link) error
	SetRequestLimit(ctx context.Context, shortURL string, limit int64) (bool, error)
	SoftDelete(ctx context.Context, shortURL string) (bool, error)
	Ping(ctx context.Context) error
}

// VisitLedger 访问计数存储
type VisitLedger interface {
	InsertZeroState(ctx context.Context, shortURL, longURL string) error
	TotalVisits(ctx context.Context, shortURL string) (int64, error)
	RecordVisit(ctx context.Context, shortURL, longURL, ip string) error
	ListAll(ctx context.Context) ([]model.VisitRecord, error)
}

// ZeroStateRemover 由不参与数据库事务的统计存储实现，
// 短链接写入失败时删除已写入的初始统计
type ZeroStateRemover interface {
	RemoveZeroState(ctx context.Context, shortURL string) error
}

// Transactor 在同一事务中执行 fn
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
