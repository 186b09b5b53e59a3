package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type txContextKey struct{}

// TxContextKey 事务句柄在 context 中的 key
var TxContextKey = txContextKey{}

// GormTransactor 基于 gorm 的事务管理
type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// WithTx 已处于事务中时复用外层事务
func (t *GormTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, TxContextKey, tx))
	})
}

// baseRepository 提供按 context 选择连接的能力
type baseRepository struct {
	db *gorm.DB
}

// getDB 返回事务连接或普通连接
func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *baseRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
