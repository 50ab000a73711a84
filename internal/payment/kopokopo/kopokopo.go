package kopokopo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/payment/callback"
)

var (
	ErrConfigInvalid    = errors.New("kopokopo config invalid")
	ErrSignatureInvalid = errors.New("kopokopo signature invalid")
)

// Webhook 主题与资源类型
const (
	TopicBuygoodsReceived = "buygoods_transaction_received"
	TypeIncomingPayment   = "incoming_payment"
	StatusSuccess         = "Success"
	StatusFailed          = "Failed"
)

// Config Kopo Kopo 配置
type Config struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	APIKey        string `json:"api_key"`
	TillNumber    string `json:"till_number"`
	WebhookSecret string `json:"webhook_secret"` // 为空时不校验签名
	BaseURL       string `json:"base_url"`
}

// Resource 交易资源
type Resource struct {
	ID                string      `json:"id"`
	Reference         string      `json:"reference"`
	Amount            interface{} `json:"amount"`
	Currency          string      `json:"currency"`
	Status            string      `json:"status"`
	System            string      `json:"system"`
	TillNumber        interface{} `json:"till_number"`
	SenderPhoneNumber string      `json:"sender_phone_number"`
	OriginationTime   string      `json:"origination_time"`
	SenderFirstName   string      `json:"sender_first_name"`
	SenderMiddleName  string      `json:"sender_middle_name"`
	SenderLastName    string      `json:"sender_last_name"`
}

// ResourceEvent 事件体
type ResourceEvent struct {
	Type     string      `json:"type"`
	Resource *Resource   `json:"resource"`
	Errors   interface{} `json:"errors"`
}

// Webhook Kopo Kopo 回调报文（两种形态二选一）
type Webhook struct {
	Topic     string         `json:"topic"`
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	Event     *ResourceEvent `json:"event"`
	Data      *struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes *struct {
			Status   string                 `json:"status"`
			Event    *ResourceEvent         `json:"event"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseWebhook 解析 Till 到账通知或 STK 收款结果
func ParseWebhook(body []byte) (*callback.Event, error) {
	var payload Webhook
	if err := callback.DecodeJSON(body, &payload); err != nil {
		return nil, err
	}
	now := time.Now()
	switch {
	case payload.Data != nil:
		return parseIncomingPayment(&payload, body, now)
	case strings.TrimSpace(payload.Topic) != "":
		return parseBuygoods(&payload, body, now)
	default:
		return nil, fmt.Errorf("%w: unknown webhook shape", callback.ErrMalformed)
	}
}

func parseBuygoods(payload *Webhook, body []byte, now time.Time) (*callback.Event, error) {
	if payload.Topic != TopicBuygoodsReceived {
		return nil, fmt.Errorf("%w: unsupported topic %s", callback.ErrMalformed, payload.Topic)
	}
	if payload.Event == nil || payload.Event.Resource == nil {
		return nil, fmt.Errorf("%w: missing event.resource", callback.ErrMalformed)
	}
	res := payload.Event.Resource
	reference := strings.TrimSpace(res.Reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: missing resource.reference", callback.ErrMalformed)
	}
	till := callback.ValueString(res.TillNumber)
	if till == "" {
		return nil, fmt.Errorf("%w: missing resource.till_number", callback.ErrMalformed)
	}
	amount, err := callback.ParseAmount(res.Amount)
	if err != nil {
		return nil, err
	}
	event := &callback.Event{
		Provider:          constants.GatewayProviderKopokopo,
		Channel:           constants.CallbackChannelC2B,
		TxnKind:           constants.TxnKindBuygoods,
		ProviderTxnID:     reference,
		ResultCode:        constants.MpesaResultCodeSuccess,
		ResultDesc:        strings.TrimSpace(res.Status),
		Success:           true,
		Amount:            amount,
		Phone:             callback.NormalizePhone(res.SenderPhoneNumber),
		PayerName:         callback.JoinName(res.SenderFirstName, res.SenderMiddleName, res.SenderLastName),
		OccurredAt:        callback.ParseRFC3339(res.OriginationTime, now),
		GatewayBusinessID: till,
		Raw:               callback.RawMap(body),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func parseIncomingPayment(payload *Webhook, body []byte, now time.Time) (*callback.Event, error) {
	data := payload.Data
	paymentID := strings.TrimSpace(data.ID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing data.id", callback.ErrMalformed)
	}
	if data.Type != TypeIncomingPayment {
		return nil, fmt.Errorf("%w: unsupported data.type %s", callback.ErrMalformed, data.Type)
	}
	if data.Attributes == nil {
		return nil, fmt.Errorf("%w: missing data.attributes", callback.ErrMalformed)
	}
	status := strings.TrimSpace(data.Attributes.Status)
	if status == "" {
		return nil, fmt.Errorf("%w: missing attributes.status", callback.ErrMalformed)
	}

	event := &callback.Event{
		Provider:         constants.GatewayProviderKopokopo,
		Channel:          constants.CallbackChannelSTK,
		TxnKind:          constants.TxnKindSTK,
		ResultCode:       status,
		Success:          strings.EqualFold(status, StatusSuccess),
		OccurredAt:       now,
		CorrelationToken: paymentID,
		BillReference:    callback.ValueString(data.Attributes.Metadata["reference"]),
		Raw:              callback.RawMap(body),
	}
	var res *Resource
	if data.Attributes.Event != nil {
		event.ResultDesc = strings.TrimSpace(data.Attributes.Event.Type)
		res = data.Attributes.Event.Resource
		if desc := callback.ValueString(data.Attributes.Event.Errors); desc != "" && !event.Success {
			event.ResultDesc = desc
		}
	}

	if !event.Success {
		event.ProviderTxnID = paymentID
		if res != nil {
			event.GatewayBusinessID = callback.ValueString(res.TillNumber)
		}
		return event, event.Validate()
	}

	if res == nil || strings.TrimSpace(res.Reference) == "" {
		return nil, fmt.Errorf("%w: missing event.resource.reference", callback.ErrMalformed)
	}
	amount, err := callback.ParseAmount(res.Amount)
	if err != nil {
		return nil, err
	}
	event.ProviderTxnID = strings.TrimSpace(res.Reference)
	event.Amount = amount
	event.Phone = callback.NormalizePhone(res.SenderPhoneNumber)
	event.PayerName = callback.JoinName(res.SenderFirstName, res.SenderMiddleName, res.SenderLastName)
	event.OccurredAt = callback.ParseRFC3339(res.OriginationTime, now)
	event.GatewayBusinessID = callback.ValueString(res.TillNumber)
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// Sign 计算报文签名（十六进制 HMAC-SHA256）
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 校验 X-KopoKopo-Signature
func VerifySignature(secret string, body []byte, signature string) error {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrSignatureInvalid)
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.TillNumber == "" {
		return fmt.Errorf("%w: till_number is required", ErrConfigInvalid)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("%w: client credentials are required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.TillNumber = strings.TrimSpace(c.TillNumber)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://sandbox.kopokopo.com"
	}
}
