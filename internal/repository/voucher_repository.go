package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
)

// VoucherRepository 预付券数据访问接口
type VoucherRepository interface {
	GetByCorrelationToken(token string) (*models.Voucher, error)
	GetByCode(code string) (*models.Voucher, error)
	TransitionFromStatus(id uint, from []string, updates map[string]interface{}) (bool, error)
	ExpireDue(before time.Time, statuses []string, expiredStatus string) (int64, error)
	Create(voucher *models.Voucher) error
	WithTx(tx *gorm.DB) *GormVoucherRepository
}

// GormVoucherRepository GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建预付券仓库
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) *GormVoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// GetByCorrelationToken 根据网关下单请求ID获取预付券
func (r *GormVoucherRepository) GetByCorrelationToken(token string) (*models.Voucher, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return r.first("correlation_token = ?", token)
}

// GetByCode 根据券码获取预付券
func (r *GormVoucherRepository) GetByCode(code string) (*models.Voucher, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return r.first("code = ?", code)
}

func (r *GormVoucherRepository) first(condition string, args ...interface{}) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.Preload("Package").Where(condition, args...).First(&voucher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// TransitionFromStatus 条件更新状态，仅当当前状态在 from 中时生效，返回是否命中
func (r *GormVoucherRepository) TransitionFromStatus(id uint, from []string, updates map[string]interface{}) (bool, error) {
	if id == 0 || len(from) == 0 || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&models.Voucher{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireDue 批量过期：状态在 statuses 中且过期时间早于 before 的预付券
func (r *GormVoucherRepository) ExpireDue(before time.Time, statuses []string, expiredStatus string) (int64, error) {
	if len(statuses) == 0 || strings.TrimSpace(expiredStatus) == "" {
		return 0, nil
	}
	result := r.db.Model(&models.Voucher{}).
		Where("status IN ? AND expires_at < ?", statuses, before).
		Updates(map[string]interface{}{
			"status":     expiredStatus,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Create 创建预付券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	return r.db.Create(voucher).Error
}
