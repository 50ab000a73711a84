package models

import (
	"time"

	"gorm.io/gorm"
)

// Voucher 预付上网券
type Voucher struct {
	ID               uint            `gorm:"primarykey" json:"id"`             // 主键
	TenantID         uint            `gorm:"index;not null" json:"tenant_id"`  // 运营方ID
	Code             string          `gorm:"uniqueIndex;not null" json:"code"` // 券码
	PackageID        uint            `gorm:"index;not null" json:"package_id"` // 套餐ID
	Package          *ServicePackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	Phone            string          `gorm:"index" json:"phone"`                                  // 购买手机号
	Amount           Money           `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 应付金额
	CorrelationToken string          `gorm:"uniqueIndex;not null" json:"correlation_token"`       // 网关下单请求ID
	PaymentReference string          `gorm:"index" json:"payment_reference"`                      // 支付凭证号
	Status           string          `gorm:"index;not null" json:"status"`                        // 状态
	ExpiresAt        time.Time       `gorm:"index;not null" json:"expires_at"`                    // 过期时间
	LastUsedAt       *time.Time      `json:"last_used_at"`                                        // 最近使用时间
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt        time.Time       `gorm:"index" json:"updated_at"`                             // 更新时间
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`                                      // 软删除时间
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}
