package models

import (
	"time"

	"gorm.io/gorm"
)

// GatewayConfig 运营方支付网关配置
type GatewayConfig struct {
	ID         uint           `gorm:"primarykey" json:"id"`                                   // 主键
	TenantID   uint           `gorm:"index;not null" json:"tenant_id"`                        // 运营方ID
	Provider   string         `gorm:"index:idx_gateway_business;not null" json:"provider"`    // 网关（mpesa/kopokopo）
	Kind       string         `gorm:"not null" json:"kind"`                                   // 收款类型（paybill/buygoods）
	BusinessID string         `gorm:"index:idx_gateway_business;not null" json:"business_id"` // 短码或 Till 号
	ConfigJSON JSON           `gorm:"type:json" json:"-"`                                     // 凭证配置
	IsActive   bool           `gorm:"not null;default:true" json:"is_active"`                 // 是否启用
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (GatewayConfig) TableName() string {
	return "gateway_configs"
}
