package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/payment/callback"
)

var (
	ErrConfigInvalid = errors.New("mpesa config invalid")
)

// C2B 交易类型
const (
	TransactionTypePaybill  = "Pay Bill"
	TransactionTypeBuygoods = "Buy Goods"
)

// Config Daraja 配置
type Config struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	ShortCode      string `json:"short_code"`
	Passkey        string `json:"passkey"`
	CallbackURL    string `json:"callback_url"`
	Environment    string `json:"environment"` // sandbox / production
}

// STKCallback STK 推送结果回调
type STKCallback struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []MetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MetadataItem 回调元数据项
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// C2BConfirmation C2B 确认回调
type C2BConfirmation struct {
	TransactionType   string      `json:"TransactionType"`
	TransID           string      `json:"TransID"`
	TransTime         interface{} `json:"TransTime"`
	TransAmount       interface{} `json:"TransAmount"`
	BusinessShortCode interface{} `json:"BusinessShortCode"`
	BillRefNumber     string      `json:"BillRefNumber"`
	InvoiceNumber     string      `json:"InvoiceNumber"`
	OrgAccountBalance interface{} `json:"OrgAccountBalance"`
	ThirdPartyTransID string      `json:"ThirdPartyTransID"`
	MSISDN            interface{} `json:"MSISDN"`
	FirstName         string      `json:"FirstName"`
	MiddleName        string      `json:"MiddleName"`
	LastName          string      `json:"LastName"`
}

// ParseSTKCallback 解析 STK 推送结果，businessID 来自回调地址参数（可为空）
func ParseSTKCallback(body []byte, businessID string) (*callback.Event, error) {
	var payload STKCallback
	if err := callback.DecodeJSON(body, &payload); err != nil {
		return nil, err
	}
	stk := payload.Body.StkCallback
	if stk == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback", callback.ErrMalformed)
	}
	checkoutID := strings.TrimSpace(stk.CheckoutRequestID)
	if checkoutID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", callback.ErrMalformed)
	}
	resultCode := strings.TrimSpace(stk.ResultCode.String())
	if resultCode == "" {
		return nil, fmt.Errorf("%w: missing ResultCode", callback.ErrMalformed)
	}

	now := time.Now()
	event := &callback.Event{
		Provider:          constants.GatewayProviderMpesa,
		Channel:           constants.CallbackChannelSTK,
		TxnKind:           constants.TxnKindSTK,
		ResultCode:        resultCode,
		ResultDesc:        strings.TrimSpace(stk.ResultDesc),
		Success:           resultCode == constants.MpesaResultCodeSuccess,
		OccurredAt:        now,
		CorrelationToken:  checkoutID,
		GatewayBusinessID: strings.TrimSpace(businessID),
		Raw:               callback.RawMap(body),
	}

	items := map[string]interface{}{}
	if stk.CallbackMetadata != nil {
		for _, item := range stk.CallbackMetadata.Item {
			items[strings.TrimSpace(item.Name)] = item.Value
		}
	}

	if !event.Success {
		// 失败结果没有元数据，流水号使用下单请求ID
		event.ProviderTxnID = checkoutID
		return event, event.Validate()
	}

	receipt := callback.ValueString(items["MpesaReceiptNumber"])
	if receipt == "" {
		return nil, fmt.Errorf("%w: missing MpesaReceiptNumber", callback.ErrMalformed)
	}
	event.ProviderTxnID = receipt
	amount, err := callback.ParseAmount(items["Amount"])
	if err != nil {
		return nil, err
	}
	event.Amount = amount
	event.Phone = callback.NormalizePhone(callback.ValueString(items["PhoneNumber"]))
	event.OccurredAt = callback.ParseDarajaTime(items["TransactionDate"], now)
	event.AccountBalance = callback.ValueString(items["Balance"])
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// ParseC2BConfirmation 解析 Paybill / Till 到账确认
func ParseC2BConfirmation(body []byte) (*callback.Event, error) {
	var payload C2BConfirmation
	if err := callback.DecodeJSON(body, &payload); err != nil {
		return nil, err
	}
	transID := strings.TrimSpace(payload.TransID)
	if transID == "" {
		return nil, fmt.Errorf("%w: missing TransID", callback.ErrMalformed)
	}
	shortCode := callback.ValueString(payload.BusinessShortCode)
	if shortCode == "" {
		return nil, fmt.Errorf("%w: missing BusinessShortCode", callback.ErrMalformed)
	}
	amount, err := callback.ParseAmount(payload.TransAmount)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	event := &callback.Event{
		Provider:          constants.GatewayProviderMpesa,
		Channel:           constants.CallbackChannelC2B,
		TxnKind:           resolveTxnKind(payload.TransactionType),
		ProviderTxnID:     transID,
		ResultCode:        constants.MpesaResultCodeSuccess,
		ResultDesc:        strings.TrimSpace(payload.TransactionType),
		Success:           true,
		Amount:            amount,
		Phone:             callback.NormalizePhone(callback.ValueString(payload.MSISDN)),
		PayerName:         callback.JoinName(payload.FirstName, payload.MiddleName, payload.LastName),
		OccurredAt:        callback.ParseDarajaTime(payload.TransTime, now),
		GatewayBusinessID: shortCode,
		BillReference:     strings.TrimSpace(payload.BillRefNumber),
		AccountBalance:    callback.ValueString(payload.OrgAccountBalance),
		Raw:               callback.RawMap(body),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func resolveTxnKind(transactionType string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(transactionType), " ", ""))
	if strings.Contains(normalized, "buygoods") || strings.Contains(normalized, "till") {
		return constants.TxnKindBuygoods
	}
	return constants.TxnKindPaybill
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
	if cfg.ShortCode == "" {
		return fmt.Errorf("%w: short_code is required", ErrConfigInvalid)
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return fmt.Errorf("%w: consumer credentials are required", ErrConfigInvalid)
	}
	if cfg.Environment != "sandbox" && cfg.Environment != "production" {
		return fmt.Errorf("%w: environment must be sandbox or production", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.ConsumerKey = strings.TrimSpace(c.ConsumerKey)
	c.ConsumerSecret = strings.TrimSpace(c.ConsumerSecret)
	c.ShortCode = strings.TrimSpace(c.ShortCode)
	c.Passkey = strings.TrimSpace(c.Passkey)
	c.CallbackURL = strings.TrimSpace(c.CallbackURL)
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = "sandbox"
	}
}
