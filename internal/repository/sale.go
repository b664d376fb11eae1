package repository

import (
	"context"
	"time"

	"github.com/wfunc/vending-machine/internal/models"
	"gorm.io/gorm"
)

// SaleRepository 销售记录仓储接口
type SaleRepository interface {
	BaseRepository
	Create(ctx context.Context, record *models.SaleRecord) error
	List(ctx context.Context, pagination *Pagination) ([]*models.SaleRecord, error)
	ListBySlot(ctx context.Context, slot int, pagination *Pagination) ([]*models.SaleRecord, error)
	SumSince(ctx context.Context, since time.Time) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// saleRepo 销售记录仓储实现
type saleRepo struct {
	*BaseRepo
}

// NewSaleRepository 创建销售记录仓储
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepo{BaseRepo: NewBaseRepo(db)}
}

// Create 写入销售记录
func (r *saleRepo) Create(ctx context.Context, record *models.SaleRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// List 分页查询销售记录，按时间倒序
func (r *saleRepo) List(ctx context.Context, pagination *Pagination) ([]*models.SaleRecord, error) {
	var records []*models.SaleRecord
	query := r.db.WithContext(ctx).Model(&models.SaleRecord{})
	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}
	err := query.
		Order("created_at DESC").
		Scopes(Paginate(pagination)).
		Find(&records).Error
	return records, err
}

// ListBySlot 按货道查询销售记录
func (r *saleRepo) ListBySlot(ctx context.Context, slot int, pagination *Pagination) ([]*models.SaleRecord, error) {
	var records []*models.SaleRecord
	query := r.db.WithContext(ctx).
		Model(&models.SaleRecord{}).
		Where("slot = ?", slot)
	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}
	err := query.
		Order("created_at DESC").
		Scopes(Paginate(pagination)).
		Find(&records).Error
	return records, err
}

// SumSince 统计某时间之后的销售总额（分）
func (r *saleRepo) SumSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.SaleRecord{}).
		Where("created_at >= ?", since).
		Select("COALESCE(SUM(price_cents), 0)").
		Scan(&total).Error
	return total, err
}

// CountSince 统计某时间之后的出货次数
func (r *saleRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SaleRecord{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}
