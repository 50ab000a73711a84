package repository

import (
	"errors"
	"strings"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
)

// SMSRepository 短信配置数据访问接口
type SMSRepository interface {
	GetActiveSetting(tenantID uint) (*models.SMSSetting, error)
	GetTemplate(tenantID uint, name string) (*models.SMSTemplate, error)
}

// GormSMSRepository GORM 实现
type GormSMSRepository struct {
	db *gorm.DB
}

// NewSMSRepository 创建短信配置仓库
func NewSMSRepository(db *gorm.DB) *GormSMSRepository {
	return &GormSMSRepository{db: db}
}

// GetActiveSetting 获取运营方启用的短信通道
func (r *GormSMSRepository) GetActiveSetting(tenantID uint) (*models.SMSSetting, error) {
	if tenantID == 0 {
		return nil, nil
	}
	var setting models.SMSSetting
	if err := r.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// GetTemplate 获取运营方短信模板
func (r *GormSMSRepository) GetTemplate(tenantID uint, name string) (*models.SMSTemplate, error) {
	name = strings.TrimSpace(name)
	if tenantID == 0 || name == "" {
		return nil, nil
	}
	var tpl models.SMSTemplate
	if err := r.db.Where("tenant_id = ? AND name = ?", tenantID, name).First(&tpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tpl, nil
}
