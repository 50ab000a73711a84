package constants

// 支付网关常量
const (
	GatewayProviderMpesa    = "mpesa"
	GatewayProviderKopokopo = "kopokopo"
)

// 回调通道常量
const (
	CallbackChannelSTK = "stk"
	CallbackChannelC2B = "c2b"
)

// 网关收款类型常量
const (
	GatewayKindPaybill  = "paybill"
	GatewayKindBuygoods = "buygoods"
)

// 流水类型常量
const (
	TxnKindPaybill  = "paybill"
	TxnKindBuygoods = "buygoods"
	TxnKindSTK      = "stk_push"
)

// 流水结果状态常量
const (
	TxnStatusSuccess = "success"
	TxnStatusFailed  = "failed"
)

// 回调结果码
const (
	MpesaResultCodeSuccess = "0"
)

// 订阅用户状态常量
const (
	SubscriberStatusActive   = "active"
	SubscriberStatusInactive = "inactive"
	SubscriberStatusExpired  = "expired"
)

// 接入类型常量
const (
	AccessTypePPPoE   = "pppoe"
	AccessTypeHotspot = "hotspot"
	AccessTypeVoucher = "voucher"
)

// 套餐时长单位常量
const (
	DurationUnitMinute = "minute"
	DurationUnitHour   = "hour"
	DurationUnitDay    = "day"
	DurationUnitWeek   = "week"
	DurationUnitMonth  = "month"
	DurationUnitYear   = "year"
)

// 预付券状态常量
const (
	VoucherStatusPending   = "pending"
	VoucherStatusActive    = "active"
	VoucherStatusUsed      = "used"
	VoucherStatusExpired   = "expired"
	VoucherStatusCancelled = "cancelled"
)

// 续期策略常量
const (
	ExtensionPolicyResetFromNow     = "reset_from_now"
	ExtensionPolicyExtendFromExpiry = "extend_from_expiry"
)

// 短信模板名称
const (
	SMSTemplateSubscriptionRenewed = "subscription_renewed"
	SMSTemplateVoucherActivated    = "voucher_activated"
)

// 短信编码方式
const (
	SMSFormatJSON = "json"
	SMSFormatForm = "form"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
	TaskSMSSend   = "sms:send"
)

// 回调应答常量
const (
	MpesaValidationAccepted = "Accepted"
	KopokopoSignatureHeader = "X-KopoKopo-Signature"
)
