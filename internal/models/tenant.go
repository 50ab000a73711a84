package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant 运营方（组织）
type Tenant struct {
	ID        uint           `gorm:"primarykey" json:"id"`                   // 主键
	Name      string         `gorm:"not null" json:"name"`                   // 名称
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"` // 是否启用
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}
