package models

import (
	"time"

	"gorm.io/gorm"
)

// SMSSetting 运营方短信通道配置
type SMSSetting struct {
	ID        uint           `gorm:"primarykey" json:"id"`                   // 主键
	TenantID  uint           `gorm:"uniqueIndex;not null" json:"tenant_id"`  // 运营方ID
	APIURL    string         `gorm:"not null" json:"api_url"`                // 短信网关地址
	APIKey    string         `json:"-"`                                      // 接口密钥
	Username  string         `json:"username"`                               // 账号
	SenderID  string         `json:"sender_id"`                              // 发送方标识
	Format    string         `gorm:"not null;default:'json'" json:"format"`  // 报文编码（json/form）
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"` // 是否启用
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (SMSSetting) TableName() string {
	return "sms_settings"
}

// SMSTemplate 运营方短信模板
type SMSTemplate struct {
	ID        uint           `gorm:"primarykey" json:"id"`                                   // 主键
	TenantID  uint           `gorm:"uniqueIndex:idx_sms_template;not null" json:"tenant_id"` // 运营方ID
	Name      string         `gorm:"uniqueIndex:idx_sms_template;not null" json:"name"`      // 模板名称
	Body      string         `gorm:"type:text;not null" json:"body"`                         // 模板内容
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (SMSTemplate) TableName() string {
	return "sms_templates"
}
