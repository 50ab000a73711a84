package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber 订阅用户
type Subscriber struct {
	ID              uint            `gorm:"primarykey" json:"id"`                              // 主键
	TenantID        uint            `gorm:"index;not null" json:"tenant_id"`                   // 运营方ID
	Name            string          `json:"name"`                                              // 姓名
	Phone           string          `gorm:"index" json:"phone"`                                // 手机号（2547XXXXXXXX）
	PPPoEUsername   string          `gorm:"column:pppoe_username;index" json:"pppoe_username"` // PPPoE 账号
	HotspotUsername string          `gorm:"index" json:"hotspot_username"`                     // 热点账号
	PackageID       *uint           `gorm:"index" json:"package_id"`                           // 套餐ID
	Package         *ServicePackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	Status          string          `gorm:"index;not null" json:"status"` // 状态
	ExpiresAt       *time.Time      `gorm:"index" json:"expires_at"`      // 到期时间
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`      // 创建时间
	UpdatedAt       time.Time       `gorm:"index" json:"updated_at"`      // 更新时间
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`               // 软删除时间
}

// TableName 指定表名
func (Subscriber) TableName() string {
	return "subscribers"
}

// AccessUsername 返回用于对账的接入账号（PPPoE 优先）
func (s *Subscriber) AccessUsername() string {
	if s == nil {
		return ""
	}
	if s.PPPoEUsername != "" {
		return s.PPPoEUsername
	}
	return s.HotspotUsername
}
