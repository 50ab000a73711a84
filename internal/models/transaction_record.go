package models

import (
	"time"
)

// TransactionRecord 网关回调流水（只追加，不更新不删除）
type TransactionRecord struct {
	ID               uint      `gorm:"primarykey" json:"id"`                        // 主键
	ProviderTxnID    string    `gorm:"uniqueIndex;not null" json:"provider_txn_id"` // 网关流水号
	TenantID         uint      `gorm:"index;not null" json:"tenant_id"`             // 运营方ID
	Provider         string    `gorm:"index;not null" json:"provider"`              // 网关
	Channel          string    `gorm:"not null" json:"channel"`                     // 回调通道（stk/c2b）
	TxnKind          string    `gorm:"not null" json:"txn_kind"`                    // 流水类型
	Status           string    `gorm:"index;not null" json:"status"`                // 结果状态
	ResultCode       string    `json:"result_code"`                                 // 网关结果码
	ResultDesc       string    `json:"result_desc"`                                 // 网关结果描述
	Amount           Money     `gorm:"type:decimal(20,2);not null" json:"amount"`   // 金额
	Phone            string    `gorm:"index" json:"phone"`                          // 付款手机号
	PayerName        string    `json:"payer_name"`                                  // 付款人
	BillReference    string    `gorm:"index" json:"bill_reference"`                 // 账单参考号
	CorrelationToken string    `gorm:"index" json:"correlation_token"`              // 下单请求ID
	BusinessID       string    `gorm:"index" json:"business_id"`                    // 短码或 Till 号
	SourceType       string    `json:"source_type"`                                 // 接入类型
	AccountBalance   string    `json:"account_balance"`                             // 网关余额（仅展示）
	OccurredAt       time.Time `gorm:"index" json:"occurred_at"`                    // 交易时间
	RawPayload       JSON      `gorm:"type:json" json:"raw_payload,omitempty"`      // 原始回调数据
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                     // 入账时间
}

// TableName 指定表名
func (TransactionRecord) TableName() string {
	return "transaction_records"
}
