package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
)

// PaymentLinkRepository 付款链接数据访问接口
type PaymentLinkRepository interface {
	GetByChargeRequestID(chargeRequestID string) (*models.PaymentLink, error)
	MarkUsed(id uint, usedAt time.Time) (bool, error)
	Create(link *models.PaymentLink) error
	WithTx(tx *gorm.DB) *GormPaymentLinkRepository
}

// GormPaymentLinkRepository GORM 实现
type GormPaymentLinkRepository struct {
	db *gorm.DB
}

// NewPaymentLinkRepository 创建付款链接仓库
func NewPaymentLinkRepository(db *gorm.DB) *GormPaymentLinkRepository {
	return &GormPaymentLinkRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentLinkRepository) WithTx(tx *gorm.DB) *GormPaymentLinkRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentLinkRepository{db: tx}
}

// GetByChargeRequestID 根据网关下单请求ID获取付款链接（含订阅用户与套餐）
func (r *GormPaymentLinkRepository) GetByChargeRequestID(chargeRequestID string) (*models.PaymentLink, error) {
	chargeRequestID = strings.TrimSpace(chargeRequestID)
	if chargeRequestID == "" {
		return nil, nil
	}
	var link models.PaymentLink
	if err := r.db.Preload("Subscriber").Preload("Subscriber.Package").
		Where("charge_request_id = ?", chargeRequestID).
		Order("id desc").
		First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// MarkUsed 标记付款链接已支付，已标记时返回 false
func (r *GormPaymentLinkRepository) MarkUsed(id uint, usedAt time.Time) (bool, error) {
	result := r.db.Model(&models.PaymentLink{}).
		Where("id = ? AND used_at IS NULL", id).
		Updates(map[string]interface{}{
			"used_at":    usedAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Create 创建付款链接
func (r *GormPaymentLinkRepository) Create(link *models.PaymentLink) error {
	return r.db.Create(link).Error
}
