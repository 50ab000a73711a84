package callback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformed     = errors.New("callback payload malformed")
	ErrInvalidAmount = errors.New("callback amount invalid")
	ErrMissingPhone  = errors.New("callback phone missing")
)

// EAT 东非时间（Daraja 时间戳所用时区）
var EAT = time.FixedZone("EAT", 3*60*60)

// Event 规范化后的网关回调事件
type Event struct {
	Provider          string                 // 网关（mpesa/kopokopo）
	Channel           string                 // 回调通道（stk/c2b）
	TxnKind           string                 // 流水类型（paybill/buygoods/stk_push）
	ProviderTxnID     string                 // 网关流水号
	ResultCode        string                 // 网关结果码
	ResultDesc        string                 // 网关结果描述
	Success           bool                   // 是否支付成功
	Amount            decimal.Decimal        // 金额
	Phone             string                 // 付款手机号
	PayerName         string                 // 付款人
	OccurredAt        time.Time              // 交易时间
	CorrelationToken  string                 // 下单请求ID
	GatewayBusinessID string                 // 短码或 Till 号
	BillReference     string                 // 账单参考号
	AccountBalance    string                 // 网关余额
	Raw               map[string]interface{} // 原始回调
}

// Validate 校验事件的必填字段
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: empty event", ErrMalformed)
	}
	if strings.TrimSpace(e.ProviderTxnID) == "" {
		return fmt.Errorf("%w: missing transaction id", ErrMalformed)
	}
	if !e.Success {
		if e.Amount.IsNegative() {
			return fmt.Errorf("%w: negative amount", ErrInvalidAmount)
		}
		return nil
	}
	if !e.Amount.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, e.Amount.String())
	}
	if strings.TrimSpace(e.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// DecodeJSON 以 json.Number 解码回调报文
func DecodeJSON(body []byte, dest interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// RawMap 将原始报文解码为 map，失败时返回 nil
func RawMap(body []byte) map[string]interface{} {
	var raw map[string]interface{}
	if err := DecodeJSON(body, &raw); err != nil {
		return nil
	}
	return raw
}

// ValueString 将数字或字符串统一转换为字符串
func ValueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// ParseAmount 解析金额
func ParseAmount(v interface{}) (decimal.Decimal, error) {
	text := ValueString(v)
	if text == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, text)
	}
	return amount, nil
}

// NormalizePhone 将肯尼亚手机号规范为 2547XXXXXXXX 形式
func NormalizePhone(v string) string {
	phone := strings.TrimSpace(v)
	phone = strings.TrimPrefix(phone, "+")
	phone = strings.NewReplacer(" ", "", "-", "").Replace(phone)
	if phone == "" {
		return ""
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			// 网关下发的脱敏号码原样保留
			return strings.TrimSpace(v)
		}
	}
	switch {
	case strings.HasPrefix(phone, "254"):
		return phone
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		return "254" + phone[1:]
	case len(phone) == 9 && (phone[0] == '7' || phone[0] == '1'):
		return "254" + phone
	}
	return phone
}

// ParseDarajaTime 按 YYYYMMDDHHMMSS 解析东非时间，失败时回退为 fallback
func ParseDarajaTime(v interface{}, fallback time.Time) time.Time {
	text := ValueString(v)
	if len(text) != 14 {
		return fallback
	}
	parsed, err := time.ParseInLocation("20060102150405", text, EAT)
	if err != nil {
		return fallback
	}
	return parsed
}

// ParseRFC3339 解析 RFC3339 时间，失败时回退为 fallback
func ParseRFC3339(v string, fallback time.Time) time.Time {
	text := strings.TrimSpace(v)
	if text == "" {
		return fallback
	}
	if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return parsed
	}
	return fallback
}

// JoinName 拼接付款人姓名
func JoinName(parts ...string) string {
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return strings.Join(names, " ")
}
