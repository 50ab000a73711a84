package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
)

// SubscriberRepository 订阅用户数据访问接口
type SubscriberRepository interface {
	GetByID(id uint) (*models.Subscriber, error)
	GetByUsername(tenantID uint, username string) (*models.Subscriber, error)
	ListByPhone(tenantID uint, phone string) ([]models.Subscriber, error)
	UpdateExpiry(id uint, expiresAt time.Time, status string) error
	Create(subscriber *models.Subscriber) error
	WithTx(tx *gorm.DB) *GormSubscriberRepository
}

// GormSubscriberRepository GORM 实现
type GormSubscriberRepository struct {
	db *gorm.DB
}

// NewSubscriberRepository 创建订阅用户仓库
func NewSubscriberRepository(db *gorm.DB) *GormSubscriberRepository {
	return &GormSubscriberRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriberRepository) WithTx(tx *gorm.DB) *GormSubscriberRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriberRepository{db: tx}
}

// GetByID 根据 ID 获取订阅用户（含套餐）
func (r *GormSubscriberRepository) GetByID(id uint) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if err := r.db.Preload("Package").First(&subscriber, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscriber, nil
}

// GetByUsername 按 PPPoE 或热点账号查找订阅用户，tenantID 为 0 时不限运营方
func (r *GormSubscriberRepository) GetByUsername(tenantID uint, username string) (*models.Subscriber, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	query := r.db.Preload("Package").Where("(pppoe_username = ? OR hotspot_username = ?)", username, username)
	if tenantID != 0 {
		query = query.Where("tenant_id = ?", tenantID)
	}
	var subscriber models.Subscriber
	if err := query.Order("id asc").First(&subscriber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscriber, nil
}

// ListByPhone 按手机号查找运营方下的订阅用户
func (r *GormSubscriberRepository) ListByPhone(tenantID uint, phone string) ([]models.Subscriber, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || tenantID == 0 {
		return []models.Subscriber{}, nil
	}
	var subscribers []models.Subscriber
	if err := r.db.Preload("Package").
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		Order("id asc").
		Find(&subscribers).Error; err != nil {
		return nil, err
	}
	return subscribers, nil
}

// UpdateExpiry 单次更新到期时间与状态
func (r *GormSubscriberRepository) UpdateExpiry(id uint, expiresAt time.Time, status string) error {
	return r.db.Model(&models.Subscriber{}).Where("id = ?", id).Updates(map[string]interface{}{
		"expires_at": expiresAt,
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// Create 创建订阅用户
func (r *GormSubscriberRepository) Create(subscriber *models.Subscriber) error {
	return r.db.Create(subscriber).Error
}
