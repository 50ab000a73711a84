package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentLink 订阅用户付款链接
type PaymentLink struct {
	ID              uint           `gorm:"primarykey" json:"id"`                // 主键
	TenantID        uint           `gorm:"index;not null" json:"tenant_id"`     // 运营方ID
	Token           string         `gorm:"uniqueIndex;not null" json:"token"`   // 链接令牌
	SubscriberID    uint           `gorm:"index;not null" json:"subscriber_id"` // 订阅用户ID
	Subscriber      *Subscriber    `gorm:"foreignKey:SubscriberID" json:"subscriber,omitempty"`
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"` // 金额
	ChargeRequestID string         `gorm:"index" json:"charge_request_id"`            // 网关下单请求ID
	UsedAt          *time.Time     `gorm:"index" json:"used_at"`                      // 支付完成时间
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                   // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (PaymentLink) TableName() string {
	return "payment_links"
}
