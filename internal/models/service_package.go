package models

import (
	"time"

	"gorm.io/gorm"
)

// ServicePackage 上网套餐
type ServicePackage struct {
	ID           uint           `gorm:"primarykey" json:"id"`                        // 主键
	TenantID     uint           `gorm:"index;not null" json:"tenant_id"`             // 运营方ID
	Name         string         `gorm:"not null" json:"name"`                        // 套餐名称
	Price        Money          `gorm:"type:decimal(20,2);not null" json:"price"`    // 价格
	Duration     int            `gorm:"not null;default:0" json:"duration"`          // 时长数值
	DurationUnit string         `gorm:"not null;default:'day'" json:"duration_unit"` // 时长单位
	AccessType   string         `gorm:"not null;default:'pppoe'" json:"access_type"` // 接入类型
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                     // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                     // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                              // 软删除时间
}

// TableName 指定表名
func (ServicePackage) TableName() string {
	return "service_packages"
}
