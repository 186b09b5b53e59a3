package repository

import (
	"context"
	"fmt"
	"time"

	"shorturl-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormVisitLedger 基于 gorm 的访问统计
type GormVisitLedger struct {
	baseRepository
	now func() time.Time
}

func NewVisitLedger(db *gorm.DB) *GormVisitLedger {
	return &GormVisitLedger{baseRepository: baseRepository{db: db}, now: time.Now}
}

// InsertZeroState 写入 ip 为空、计数为 0 的初始行
func (r *GormVisitLedger) InsertZeroState(ctx context.Context, shortURL, longURL string) error {
	record := model.VisitRecord{ShortURL: shortURL, LongURL: longURL}
	if err := r.getDB(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert zero state: %w", err)
	}
	return nil
}

// TotalVisits 汇总该短链接所有 IP 的访问次数
func (r *GormVisitLedger) TotalVisits(ctx context.Context, shortURL string) (int64, error) {
	var total int64
	err := r.getDB(ctx).Model(&model.VisitRecord{}).
		Where("short_url = ?", shortURL).
		Select("COALESCE(SUM(visit_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum visits: %w", err)
	}
	return total, nil
}

// RecordVisit 单条 upsert 语句完成计数加一，并发访问不会丢失更新
func (r *GormVisitLedger) RecordVisit(ctx context.Context, shortURL, longURL, ip string) error {
	now := r.now()
	record := model.VisitRecord{
		ShortURL:    shortURL,
		LongURL:     longURL,
		VisitCount:  1,
		IP:          ip,
		LastVisited: &now,
	}
	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "short_url"}, {Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"visit_count":  gorm.Expr("visit_records.visit_count + ?", 1),
			"long_url":     longURL,
			"last_visited": now,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// ListAll 按存储顺序返回全部统计
func (r *GormVisitLedger) ListAll(ctx context.Context) ([]model.VisitRecord, error) {
	records := make([]model.VisitRecord, 0)
	if err := r.getDB(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list visit records: %w", err)
	}
	return records, nil
}
