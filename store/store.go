package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ 存储接口与 GORM 实现
// =============================================================================

// defaultListLimit 列表查询未指定 limit 时的默认条数。
const defaultListLimit = 100

// Store 用量与告警历史的持久化接口。
type Store interface {
	// SaveUsage 写入一条用量流水。
	SaveUsage(ctx context.Context, record *UsageRecord) error

	// ListUsage 按时间倒序返回 since 之后的用量流水，最多 limit 条。
	ListUsage(ctx context.Context, since time.Time, limit int) ([]UsageRecord, error)

	// SaveAlert 写入一条告警记录。
	SaveAlert(ctx context.Context, record *AlertRecord) error

	// ListAlerts 按触发时间倒序返回 since 之后的告警，最多 limit 条。
	ListAlerts(ctx context.Context, since time.Time, limit int) ([]AlertRecord, error)

	// PurgeBefore 删除 cutoff 之前的全部历史，返回删除行数。
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InitSchema 自动迁移存储层表结构。
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&UsageRecord{}, &AlertRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// GormStore 基于 *gorm.DB 的 Store 实现。
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建 GORM 存储。
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}
}

// SaveUsage 写入一条用量流水。
func (s *GormStore) SaveUsage(ctx context.Context, record *UsageRecord) error {
	if record == nil {
		return fmt.Errorf("usage record must not be nil")
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Error("save usage record failed",
			zap.String("request_id", record.RequestID),
			zap.Error(err),
		)
		return fmt.Errorf("save usage record: %w", err)
	}
	return nil
}

// ListUsage 按时间倒序返回 since 之后的用量流水。
func (s *GormStore) ListUsage(ctx context.Context, since time.Time, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var records []UsageRecord
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return records, nil
}

// SaveAlert 写入一条告警记录。
func (s *GormStore) SaveAlert(ctx context.Context, record *AlertRecord) error {
	if record == nil {
		return fmt.Errorf("alert record must not be nil")
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Error("save alert record failed",
			zap.String("alert_id", record.AlertID),
			zap.Error(err),
		)
		return fmt.Errorf("save alert record: %w", err)
	}
	return nil
}

// ListAlerts 按触发时间倒序返回 since 之后的告警。
func (s *GormStore) ListAlerts(ctx context.Context, since time.Time, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var records []AlertRecord
	err := s.db.WithContext(ctx).
		Where("raised_at >= ?", since).
		Order("raised_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list alert records: %w", err)
	}
	return records, nil
}

// PurgeBefore 删除 cutoff 之前的全部历史，返回删除行数。
func (s *GormStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&UsageRecord{})
	if res.Error != nil {
		return purged, fmt.Errorf("purge usage records: %w", res.Error)
	}
	purged += res.RowsAffected

	res = s.db.WithContext(ctx).Where("raised_at < ?", cutoff).Delete(&AlertRecord{})
	if res.Error != nil {
		return purged, fmt.Errorf("purge alert records: %w", res.Error)
	}
	purged += res.RowsAffected

	s.logger.Info("purged persisted history",
		zap.Time("cutoff", cutoff),
		zap.Int64("rows", purged),
	)
	return purged, nil
}
