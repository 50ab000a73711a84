package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/models"
)

// SMSSender 短信通道
type SMSSender interface {
	Send(ctx context.Context, setting *models.SMSSetting, phone, message string) error
}

// HTTPSMSSender 通用 HTTP 短信网关发送器
type HTTPSMSSender struct {
	client *http.Client
}

// NewHTTPSMSSender 创建 HTTP 短信发送器
func NewHTTPSMSSender(timeout time.Duration) *HTTPSMSSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSMSSender{client: &http.Client{Timeout: timeout}}
}

// Send 发送短信，非 2xx 视为失败
func (s *HTTPSMSSender) Send(ctx context.Context, setting *models.SMSSetting, phone, message string) error {
	if setting == nil || strings.TrimSpace(setting.APIURL) == "" {
		return fmt.Errorf("%w: sms setting incomplete", ErrNotificationFailed)
	}
	fields := map[string]string{
		"api_key":   setting.APIKey,
		"username":  setting.Username,
		"sender_id": setting.SenderID,
		"to":        phone,
		"message":   message,
	}

	var body io.Reader
	contentType := "application/json"
	if strings.EqualFold(strings.TrimSpace(setting.Format), constants.SMSFormatForm) {
		form := url.Values{}
		for key, value := range fields {
			if value != "" {
				form.Set(key, value)
			}
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		payload, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(setting.APIURL), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if setting.APIKey != "" {
		req.Header.Set("X-API-Key", setting.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
