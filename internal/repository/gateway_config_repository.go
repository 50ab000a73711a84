package repository

import (
	"errors"
	"strings"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
)

// GatewayConfigRepository 网关配置数据访问接口
type GatewayConfigRepository interface {
	ListActiveByBusinessID(provider, businessID string) ([]models.GatewayConfig, error)
	GetActiveByTenant(tenantID uint, provider string) (*models.GatewayConfig, error)
	GetActiveByID(id uint) (*models.GatewayConfig, error)
	Create(cfg *models.GatewayConfig) error
	WithTx(tx *gorm.DB) *GormGatewayConfigRepository
}

// GormGatewayConfigRepository GORM 实现
type GormGatewayConfigRepository struct {
	db *gorm.DB
}

// NewGatewayConfigRepository 创建网关配置仓库
func NewGatewayConfigRepository(db *gorm.DB) *GormGatewayConfigRepository {
	return &GormGatewayConfigRepository{db: db}
}

// WithTx 绑定事务
func (r *GormGatewayConfigRepository) WithTx(tx *gorm.DB) *GormGatewayConfigRepository {
	if tx == nil {
		return r
	}
	return &GormGatewayConfigRepository{db: tx}
}

// ListActiveByBusinessID 获取启用中且短码匹配的配置（跨运营方）
func (r *GormGatewayConfigRepository) ListActiveByBusinessID(provider, businessID string) ([]models.GatewayConfig, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return []models.GatewayConfig{}, nil
	}
	var configs []models.GatewayConfig
	query := r.db.Where("business_id = ? AND is_active = ?", businessID, true)
	if provider = strings.TrimSpace(provider); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if err := query.Order("id asc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// GetActiveByTenant 获取运营方某网关的启用配置
func (r *GormGatewayConfigRepository) GetActiveByTenant(tenantID uint, provider string) (*models.GatewayConfig, error) {
	if tenantID == 0 {
		return nil, nil
	}
	var cfg models.GatewayConfig
	query := r.db.Where("tenant_id = ? AND is_active = ?", tenantID, true)
	if provider = strings.TrimSpace(provider); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if err := query.Order("id asc").First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// GetActiveByID 按 ID 获取启用中的配置
func (r *GormGatewayConfigRepository) GetActiveByID(id uint) (*models.GatewayConfig, error) {
	if id == 0 {
		return nil, nil
	}
	var cfg models.GatewayConfig
	if err := r.db.Where("id = ? AND is_active = ?", id, true).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Create 创建网关配置
func (r *GormGatewayConfigRepository) Create(cfg *models.GatewayConfig) error {
	return r.db.Create(cfg).Error
}
