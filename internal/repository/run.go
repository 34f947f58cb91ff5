package repository

import (
	"context"
	"errors"
	"time"

	"fyts-validation/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Migrate 创建或更新 runs 表结构
func (r *RunRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.Run{})
}

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID 获取指定记录，不存在时返回 nil, nil
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByWallet 按创建时间倒序返回某个钱包的全部记录
func (r *RunRepository) ListByWallet(ctx context.Context, wallet string) ([]models.Run, error) {
	var runs []models.Run
	err := r.db.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

// ListByStatus 按状态过滤，status 为空时返回全部
func (r *RunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]models.Run, error) {
	var runs []models.Run
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// UpdateStatus 仅修改状态与更新时间，返回是否命中记录
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

// TopByDistance 排行榜：按单次距离倒序
func (r *RunRepository) TopByDistance(ctx context.Context, limit int) ([]models.Run, error) {
	var runs []models.Run
	if limit <= 0 {
		limit = 10
	}
	err := r.db.WithContext(ctx).
		Order("distance DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// SumTokensByStatus 汇总某状态下的代币数量
func (r *RunRepository) SumTokensByStatus(ctx context.Context, status models.RunStatus) (decimal.Decimal, error) {
	var tokens []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("status = ?", status).
		Pluck("tokens", &tokens).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, t := range tokens {
		total = total.Add(t)
	}
	return total, nil
}

func (r *RunRepository) CountByStatus(ctx context.Context, status models.RunStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
