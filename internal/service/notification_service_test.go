package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/queue"
	"github.com/lipa-next/internal/repository"
)

type channelSMSSender struct {
	messages chan string
}

func (s *channelSMSSender) Send(_ context.Context, _ *models.SMSSetting, phone, message string) error {
	s.messages <- phone + "|" + message
	return nil
}

func TestRenderSMSTemplate(t *testing.T) {
	vars := map[string]interface{}{"name": "Alice", "amount": "500.00"}
	got := renderSMSTemplate("Hi {{ name }}, paid {amount} {{missing}}{unknown}.", vars)
	if got != "Hi Alice, paid 500.00 ." {
		t.Fatalf("unexpected render: %q", got)
	}
	if got := renderSMSTemplate("   ", vars); got != "" {
		t.Fatalf("blank template should render empty, got %q", got)
	}
}

func TestBuildSMSDedupeKeyStable(t *testing.T) {
	a := buildSMSDedupeKey(1, "Voucher_Activated", "254708374149", "NLJ7RT61SV")
	b := buildSMSDedupeKey(1, "voucher_activated", " 254708374149 ", "NLJ7RT61SV")
	if a != b || !strings.HasPrefix(a, "sms:dedupe:") {
		t.Fatalf("unexpected dedupe keys: %s %s", a, b)
	}
	if a == buildSMSDedupeKey(2, "voucher_activated", "254708374149", "NLJ7RT61SV") {
		t.Fatalf("tenant should be part of dedupe key")
	}
}

func TestNotificationServiceNotifyUsesTenantTemplate(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	mustCreate(t, fx.db, &models.SMSSetting{TenantID: fx.tenant.ID, APIURL: "http://sms.local", IsActive: true})
	mustCreate(t, fx.db, &models.SMSTemplate{TenantID: fx.tenant.ID, Name: constants.SMSTemplateVoucherActivated, Body: "Code {{code}} ok"})
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	t.Cleanup(func() {
		_ = queueClient.Close()
	})
	sender := &channelSMSSender{messages: make(chan string, 1)}
	svc := NewNotificationService(repository.NewSMSRepository(fx.db), queueClient, sender, config.NotificationConfig{Enabled: true, TimeoutSeconds: 2})

	svc.Notify(context.Background(), NotifyInput{
		Template:  constants.SMSTemplateVoucherActivated,
		TenantID:  fx.tenant.ID,
		Phone:     "0708374149",
		Variables: map[string]interface{}{"code": "HS-1"},
	})
	select {
	case got := <-sender.messages:
		if got != "254708374149|Code HS-1 ok" {
			t.Fatalf("unexpected message: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sms was not delivered")
	}
}

func TestNotificationServiceDisabledIsNoop(t *testing.T) {
	sender := &channelSMSSender{messages: make(chan string, 1)}
	svc := NewNotificationService(nil, nil, sender, config.NotificationConfig{Enabled: false})
	svc.Notify(context.Background(), NotifyInput{Template: constants.SMSTemplateVoucherActivated, TenantID: 1, Phone: "254708374149"})
	select {
	case got := <-sender.messages:
		t.Fatalf("disabled notifier sent %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotificationServiceDeliverWithoutSetting(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	svc := NewNotificationService(repository.NewSMSRepository(fx.db), nil, &failingSMSSender{}, config.NotificationConfig{Enabled: true})
	err := svc.Deliver(context.Background(), queue.SMSSendPayload{TenantID: fx.tenant.ID, Phone: "254708374149", Message: "hi"})
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("want notification failed got %v", err)
	}
}

func TestHTTPSMSSenderFormats(t *testing.T) {
	var gotContentType, gotBody, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotKey = r.Header.Get("X-API-Key")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSMSSender(time.Second)
	setting := &models.SMSSetting{APIURL: server.URL, APIKey: "k1", SenderID: "LIPA", Format: constants.SMSFormatForm}
	if err := sender.Send(context.Background(), setting, "254708374149", "hello"); err != nil {
		t.Fatalf("form send failed: %v", err)
	}
	if gotContentType != "application/x-www-form-urlencoded" || gotKey != "k1" || !strings.Contains(gotBody, "to=254708374149") {
		t.Fatalf("unexpected form request: %s %s %s", gotContentType, gotKey, gotBody)
	}

	setting.Format = constants.SMSFormatJSON
	if err := sender.Send(context.Background(), setting, "254708374149", "hello"); err != nil {
		t.Fatalf("json send failed: %v", err)
	}
	if gotContentType != "application/json" || !strings.Contains(gotBody, `"message":"hello"`) {
		t.Fatalf("unexpected json request: %s %s", gotContentType, gotBody)
	}
}

func TestHTTPSMSSenderRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewHTTPSMSSender(time.Second).Send(context.Background(), &models.SMSSetting{APIURL: server.URL}, "254708374149", "hello")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("want status error got %v", err)
	}
}
