package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/payment/kopokopo"
	"github.com/lipa-next/internal/payment/mpesa"
	"github.com/lipa-next/internal/queue"
	"github.com/lipa-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []NotifyInput
}

func (n *recordingNotifier) Notify(_ context.Context, input NotifyInput) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, input)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inputs)
}

type failingSMSSender struct {
	calls int32
}

func (s *failingSMSSender) Send(_ context.Context, _ *models.SMSSetting, _, _ string) error {
	atomic.AddInt32(&s.calls, 1)
	return errors.New("sms gateway unreachable")
}

type callbackFixture struct {
	db         *gorm.DB
	service    *CallbackService
	tenant     models.Tenant
	pkg        models.ServicePackage
	subscriber models.Subscriber
	now        time.Time
}

func setupCallbackServiceTest(t *testing.T, notifier Notifier) *callbackFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:callback_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.GatewayConfig{},
		&models.ServicePackage{},
		&models.Subscriber{},
		&models.Voucher{},
		&models.PaymentLink{},
		&models.TransactionRecord{},
		&models.SMSSetting{},
		&models.SMSTemplate{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	fx := &callbackFixture{db: db, now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	fx.tenant = models.Tenant{Name: "Kibera Net", IsActive: true}
	mustCreate(t, db, &fx.tenant)
	mustCreate(t, db, &models.GatewayConfig{
		TenantID:   fx.tenant.ID,
		Provider:   constants.GatewayProviderMpesa,
		Kind:       constants.GatewayKindPaybill,
		BusinessID: "600638",
		IsActive:   true,
	})
	fx.pkg = models.ServicePackage{
		TenantID:     fx.tenant.ID,
		Name:         "Home 10Mbps",
		Price:        models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		Duration:     30,
		DurationUnit: constants.DurationUnitDay,
		AccessType:   constants.AccessTypePPPoE,
	}
	mustCreate(t, db, &fx.pkg)
	fx.subscriber = models.Subscriber{
		TenantID:      fx.tenant.ID,
		Name:          "Alice",
		Phone:         "254708374149",
		PPPoEUsername: "alice-pppoe",
		PackageID:     &fx.pkg.ID,
		Status:        constants.SubscriberStatusInactive,
	}
	mustCreate(t, db, &fx.subscriber)

	gatewayRepo := repository.NewGatewayConfigRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	linkRepo := repository.NewPaymentLinkRepository(db)
	accounts := NewAccountResolver(gatewayRepo, time.Minute)
	resolver := NewCorrelationResolver(voucherRepo, linkRepo, subscriberRepo, accounts)
	ledger := NewLedgerService(repository.NewTransactionRepository(db), 5*time.Second)
	subscriptions := NewSubscriptionService(subscriberRepo, notifier, constants.ExtensionPolicyResetFromNow)
	subscriptions.now = func() time.Time { return fx.now }
	vouchers := NewVoucherService(voucherRepo, notifier)
	vouchers.now = func() time.Time { return fx.now }
	fx.service = NewCallbackService(resolver, accounts, ledger, subscriptions, vouchers, linkRepo)
	fx.service.now = func() time.Time { return fx.now }
	return fx
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T failed: %v", value, err)
	}
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.TransactionRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count records failed: %v", err)
	}
	return count
}

func reloadSubscriber(t *testing.T, db *gorm.DB, id uint) models.Subscriber {
	t.Helper()
	var subscriber models.Subscriber
	if err := db.First(&subscriber, id).Error; err != nil {
		t.Fatalf("reload subscriber failed: %v", err)
	}
	return subscriber
}

func c2bEvent(t *testing.T, txnID, shortCode, billRef, amount string) *callback.Event {
	t.Helper()
	body := fmt.Sprintf(`{
  "TransactionType": "Pay Bill",
  "TransID": %q,
  "TransTime": "20260301103845",
  "TransAmount": %q,
  "BusinessShortCode": %q,
  "BillRefNumber": %q,
  "OrgAccountBalance": "49197.00",
  "MSISDN": "254708374149",
  "FirstName": "Alice"
}`, txnID, amount, shortCode, billRef)
	event, err := mpesa.ParseC2BConfirmation([]byte(body))
	if err != nil {
		t.Fatalf("parse c2b failed: %v", err)
	}
	return event
}

func stkEvent(t *testing.T, checkoutID, receipt string, resultCode int, amount string) *callback.Event {
	t.Helper()
	body := fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"Request cancelled by user"}}}`, checkoutID, resultCode)
	if resultCode == 0 {
		body = fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%s},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"TransactionDate","Value":20260301102115},{"Name":"PhoneNumber","Value":254708374149}]}}}}`, checkoutID, amount, receipt)
	}
	event, err := mpesa.ParseSTKCallback([]byte(body), "")
	if err != nil {
		t.Fatalf("parse stk failed: %v", err)
	}
	return event
}

func TestCallbackServiceC2BExtendsSubscriptionOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	fx := setupCallbackServiceTest(t, notifier)
	ctx := context.Background()

	result, err := fx.service.Process(ctx, ProcessInput{Event: c2bEvent(t, "RKTQDM7W6S", "600638", "alice-pppoe", "500")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.LedgerOutcome != repository.RecordInserted {
		t.Fatalf("want inserted got %s", result.LedgerOutcome)
	}
	if result.Effect != EffectSubscriptionExtended || result.EffectError != nil {
		t.Fatalf("unexpected effect: %s err=%v", result.Effect, result.EffectError)
	}
	if result.TenantID != fx.tenant.ID || result.TargetKind != TargetSubscriber {
		t.Fatalf("unexpected target: tenant=%d kind=%s", result.TenantID, result.TargetKind)
	}

	subscriber := reloadSubscriber(t, fx.db, fx.subscriber.ID)
	want := fx.now.Add(15 * 24 * time.Hour)
	if subscriber.ExpiresAt == nil || !subscriber.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at want %v got %v", want, subscriber.ExpiresAt)
	}
	if subscriber.Status != constants.SubscriberStatusActive {
		t.Fatalf("status want active got %s", subscriber.Status)
	}

	fx.now = fx.now.Add(time.Hour)
	replay, err := fx.service.Process(ctx, ProcessInput{Event: c2bEvent(t, "RKTQDM7W6S", "600638", "alice-pppoe", "500")})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.LedgerOutcome != repository.RecordDuplicate {
		t.Fatalf("replay want duplicate got %s", replay.LedgerOutcome)
	}
	if got := reloadSubscriber(t, fx.db, fx.subscriber.ID); !got.ExpiresAt.Equal(want) {
		t.Fatalf("replay changed expiry: %v", got.ExpiresAt)
	}
	if count := countRecords(t, fx.db); count != 1 {
		t.Fatalf("ledger count want 1 got %d", count)
	}
	if notifier.count() != 1 {
		t.Fatalf("notification count want 1 got %d", notifier.count())
	}

	var record models.TransactionRecord
	if err := fx.db.Where("provider_txn_id = ?", "RKTQDM7W6S").First(&record).Error; err != nil {
		t.Fatalf("load record failed: %v", err)
	}
	if record.BillReference != "alice-pppoe" || record.SourceType != constants.AccessTypePPPoE || record.BusinessID != "600638" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestCallbackServiceUnknownTenantSkipsLedger(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	result, err := fx.service.Process(context.Background(), ProcessInput{Event: c2bEvent(t, "RKTQDM7W7A", "999999", "alice-pppoe", "500")})
	if err != nil {
		t.Fatalf("unknown tenant should not error: %v", err)
	}
	if !result.LedgerSkipped || result.Effect != EffectSkipped {
		t.Fatalf("expected skipped result, got %+v", result)
	}
	if count := countRecords(t, fx.db); count != 0 {
		t.Fatalf("ledger count want 0 got %d", count)
	}
}

func TestCallbackServiceAmbiguousTenantSkipsLedger(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	other := models.Tenant{Name: "Mathare Net", IsActive: true}
	mustCreate(t, fx.db, &other)
	mustCreate(t, fx.db, &models.GatewayConfig{
		TenantID:   other.ID,
		Provider:   constants.GatewayProviderMpesa,
		Kind:       constants.GatewayKindPaybill,
		BusinessID: "600638",
		IsActive:   true,
	})

	result, err := fx.service.Process(context.Background(), ProcessInput{Event: c2bEvent(t, "RKTQDM7W7B", "600638", "alice-pppoe", "500")})
	if err != nil {
		t.Fatalf("ambiguous tenant should not error: %v", err)
	}
	if !result.LedgerSkipped {
		t.Fatalf("expected ledger skipped")
	}
	if count := countRecords(t, fx.db); count != 0 {
		t.Fatalf("ledger count want 0 got %d", count)
	}
}

func TestCallbackServiceUnresolvableSubscriberStillRecorded(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	result, err := fx.service.Process(context.Background(), ProcessInput{Event: c2bEvent(t, "RKTQDM7W7C", "600638", "ghost-user", "500")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.LedgerOutcome != repository.RecordInserted {
		t.Fatalf("want inserted got %s", result.LedgerOutcome)
	}
	if !errors.Is(result.EffectError, ErrSubscriberNotFound) {
		t.Fatalf("effect error want subscriber not found got %v", result.EffectError)
	}
	if count := countRecords(t, fx.db); count != 1 {
		t.Fatalf("ledger count want 1 got %d", count)
	}
	if got := reloadSubscriber(t, fx.db, fx.subscriber.ID); got.ExpiresAt != nil {
		t.Fatalf("subscriber should be untouched, got expiry %v", got.ExpiresAt)
	}
}

func TestCallbackServiceVoucherActivation(t *testing.T) {
	notifier := &recordingNotifier{}
	fx := setupCallbackServiceTest(t, notifier)
	voucher := models.Voucher{
		TenantID:         fx.tenant.ID,
		Code:             "HS-7731",
		PackageID:        fx.pkg.ID,
		Phone:            "254708374149",
		Amount:           models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		CorrelationToken: "ws_CO_000000001",
		Status:           constants.VoucherStatusPending,
		ExpiresAt:        fx.now.Add(24 * time.Hour),
	}
	mustCreate(t, fx.db, &voucher)

	ctx := context.Background()
	result, err := fx.service.Process(ctx, ProcessInput{Event: stkEvent(t, "ws_CO_000000001", "NLJ7RT61SV", 0, "50")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.TargetKind != TargetVoucher || result.Effect != EffectVoucherActivated {
		t.Fatalf("unexpected result: %+v", result)
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusActive || stored.PaymentReference != "NLJ7RT61SV" {
		t.Fatalf("unexpected voucher state: %s ref=%s", stored.Status, stored.PaymentReference)
	}

	replay, err := fx.service.Process(ctx, ProcessInput{Event: stkEvent(t, "ws_CO_000000001", "NLJ7RT61SV", 0, "50")})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.LedgerOutcome != repository.RecordDuplicate {
		t.Fatalf("replay want duplicate got %s", replay.LedgerOutcome)
	}
	if notifier.count() != 1 {
		t.Fatalf("notification count want 1 got %d", notifier.count())
	}

	var record models.TransactionRecord
	if err := fx.db.Where("provider_txn_id = ?", "NLJ7RT61SV").First(&record).Error; err != nil {
		t.Fatalf("load record failed: %v", err)
	}
	if record.BillReference != "HS-7731" || record.BusinessID != "600638" {
		t.Fatalf("unexpected record: bill=%s business=%s", record.BillReference, record.BusinessID)
	}
}

func TestCallbackServiceVoucherCancelledIgnoresLateSuccess(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	voucher := models.Voucher{
		TenantID:         fx.tenant.ID,
		Code:             "HS-7732",
		PackageID:        fx.pkg.ID,
		Amount:           models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		CorrelationToken: "ws_CO_000000002",
		Status:           constants.VoucherStatusPending,
		ExpiresAt:        fx.now.Add(24 * time.Hour),
	}
	mustCreate(t, fx.db, &voucher)

	ctx := context.Background()
	failed, err := fx.service.Process(ctx, ProcessInput{Event: stkEvent(t, "ws_CO_000000002", "", 1032, "")})
	if err != nil {
		t.Fatalf("failed callback errored: %v", err)
	}
	if failed.Effect != EffectVoucherCancelled {
		t.Fatalf("want cancelled effect got %s", failed.Effect)
	}

	late, err := fx.service.Process(ctx, ProcessInput{Event: stkEvent(t, "ws_CO_000000002", "NLJ7RT61SW", 0, "50")})
	if err != nil {
		t.Fatalf("late success errored: %v", err)
	}
	if late.LedgerOutcome != repository.RecordInserted || late.Effect != EffectVoucherUnchanged {
		t.Fatalf("unexpected late result: %+v", late)
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusCancelled {
		t.Fatalf("voucher status want cancelled got %s", stored.Status)
	}
	if count := countRecords(t, fx.db); count != 2 {
		t.Fatalf("ledger count want 2 got %d", count)
	}

	var failedRecord models.TransactionRecord
	if err := fx.db.Where("provider_txn_id = ?", "ws_CO_000000002").First(&failedRecord).Error; err != nil {
		t.Fatalf("load failed record: %v", err)
	}
	if failedRecord.Status != constants.TxnStatusFailed || !failedRecord.Amount.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected failed record: status=%s amount=%s", failedRecord.Status, failedRecord.Amount.String())
	}
}

func TestCallbackServicePaymentLinkCompletes(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	link := models.PaymentLink{
		TenantID:        fx.tenant.ID,
		Token:           "pl_01",
		SubscriberID:    fx.subscriber.ID,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		ChargeRequestID: "ws_CO_000000003",
	}
	mustCreate(t, fx.db, &link)

	result, err := fx.service.Process(context.Background(), ProcessInput{Event: stkEvent(t, "ws_CO_000000003", "NLJ7RT61SX", 0, "1000")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.TargetKind != TargetPaymentLink || result.Effect != EffectPaymentLinkCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	var stored models.PaymentLink
	if err := fx.db.First(&stored, link.ID).Error; err != nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if stored.UsedAt == nil {
		t.Fatalf("expected link marked used")
	}
	subscriber := reloadSubscriber(t, fx.db, fx.subscriber.ID)
	want := fx.now.Add(30 * 24 * time.Hour)
	if subscriber.ExpiresAt == nil || !subscriber.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at want %v got %v", want, subscriber.ExpiresAt)
	}
}

func failingNotifier(t *testing.T, fx *callbackFixture) (*NotificationService, *failingSMSSender) {
	t.Helper()
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	t.Cleanup(func() {
		_ = queueClient.Close()
	})
	mustCreate(t, fx.db, &models.SMSSetting{
		TenantID: fx.tenant.ID,
		APIURL:   "http://127.0.0.1:1/sms",
		Format:   constants.SMSFormatJSON,
		IsActive: true,
	})
	sender := &failingSMSSender{}
	notifier := NewNotificationService(repository.NewSMSRepository(fx.db), queueClient, sender, config.NotificationConfig{Enabled: true, TimeoutSeconds: 1})
	return notifier, sender
}

func waitForSendAttempt(t *testing.T, sender *failingSMSSender) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&sender.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sms sender was never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCallbackServiceFailingSMSDoesNotChangeOutcome(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	notifier, sender := failingNotifier(t, fx)
	fx.service.subscriptions.notifier = notifier

	result, err := fx.service.Process(context.Background(), ProcessInput{Event: c2bEvent(t, "RKTQDM7W7D", "600638", "alice-pppoe", "1000")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	waitForSendAttempt(t, sender)
	if result.LedgerOutcome != repository.RecordInserted || result.Effect != EffectSubscriptionExtended || result.EffectError != nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	subscriber := reloadSubscriber(t, fx.db, fx.subscriber.ID)
	if subscriber.Status != constants.SubscriberStatusActive {
		t.Fatalf("status want active got %s", subscriber.Status)
	}
}

func TestCallbackServiceFailingSMSKeepsVoucherActivation(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	notifier, sender := failingNotifier(t, fx)
	fx.service.vouchers.notifier = notifier
	voucher := createPendingVoucher(t, fx, "HS-3001", fx.now.Add(time.Hour))

	result, err := fx.service.Process(context.Background(), ProcessInput{Event: stkEvent(t, voucher.CorrelationToken, "NLJ7RT3001", 0, "50")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	waitForSendAttempt(t, sender)
	if result.LedgerOutcome != repository.RecordInserted || result.Effect != EffectVoucherActivated || result.EffectError != nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusActive || stored.PaymentReference != "NLJ7RT3001" {
		t.Fatalf("unexpected voucher state: %s ref=%s", stored.Status, stored.PaymentReference)
	}
}

func TestCallbackServiceConcurrentDuplicateDelivery(t *testing.T) {
	notifier := &recordingNotifier{}
	fx := setupCallbackServiceTest(t, notifier)
	sqlDB, err := fx.db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	const deliveries = 8
	events := make([]*callback.Event, deliveries)
	for i := range events {
		events[i] = c2bEvent(t, "RKTQCONC01", "600638", "alice-pppoe", "1000")
	}
	outcomes := make([]repository.RecordOutcome, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := fx.service.Process(context.Background(), ProcessInput{Event: events[i]})
			errs[i] = err
			if result != nil {
				outcomes[i] = result.LedgerOutcome
			}
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("delivery %d failed: %v", i, errs[i])
		}
		if outcomes[i] == repository.RecordInserted {
			inserted++
		}
	}
	if inserted != 1 {
		t.Fatalf("inserted outcomes want 1 got %d", inserted)
	}
	if count := countRecords(t, fx.db); count != 1 {
		t.Fatalf("ledger count want 1 got %d", count)
	}
	if notifier.count() != 1 {
		t.Fatalf("notification count want 1 got %d", notifier.count())
	}
	if subscriber := reloadSubscriber(t, fx.db, fx.subscriber.ID); subscriber.Status != constants.SubscriberStatusActive {
		t.Fatalf("status want active got %s", subscriber.Status)
	}
}

func TestCallbackServiceConcurrentVoucherReceipts(t *testing.T) {
	notifier := &recordingNotifier{}
	fx := setupCallbackServiceTest(t, notifier)
	sqlDB, err := fx.db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	voucher := createPendingVoucher(t, fx, "HS-3101", fx.now.Add(time.Hour))

	const deliveries = 6
	events := make([]*callback.Event, deliveries)
	receipts := make(map[string]bool, deliveries)
	for i := range events {
		receipt := fmt.Sprintf("NLJ7RC%04d", i)
		receipts[receipt] = true
		events[i] = stkEvent(t, voucher.CorrelationToken, receipt, 0, "50")
	}
	effects := make([]string, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := fx.service.Process(context.Background(), ProcessInput{Event: events[i]})
			errs[i] = err
			if result != nil {
				effects[i] = result.Effect
			}
		}(i)
	}
	wg.Wait()

	activated := 0
	for i := range effects {
		if errs[i] != nil {
			t.Fatalf("delivery %d failed: %v", i, errs[i])
		}
		switch effects[i] {
		case EffectVoucherActivated:
			activated++
		case EffectVoucherUnchanged:
		default:
			t.Fatalf("delivery %d unexpected effect %s", i, effects[i])
		}
	}
	if activated != 1 {
		t.Fatalf("activations want 1 got %d", activated)
	}
	if count := countRecords(t, fx.db); count != deliveries {
		t.Fatalf("every distinct receipt is ledgered: want %d got %d", deliveries, count)
	}
	if notifier.count() != 1 {
		t.Fatalf("notification count want 1 got %d", notifier.count())
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusActive || !receipts[stored.PaymentReference] {
		t.Fatalf("unexpected voucher state: %s ref=%s", stored.Status, stored.PaymentReference)
	}
}

func TestCallbackServiceKopokopoSignature(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	mustCreate(t, fx.db, &models.GatewayConfig{
		TenantID:   fx.tenant.ID,
		Provider:   constants.GatewayProviderKopokopo,
		Kind:       constants.GatewayKindBuygoods,
		BusinessID: "514459",
		ConfigJSON: models.JSON{"client_id": "cid", "client_secret": "csecret", "webhook_secret": "whsec_test"},
		IsActive:   true,
	})
	body := []byte(`{
  "topic": "buygoods_transaction_received",
  "id": "2133dbfb-24b9-40fc-ae57-2d7559785760",
  "created_at": "2026-03-01T10:43:20+03:00",
  "event": {
    "type": "Buygoods Transaction",
    "resource": {
      "id": "458712f-gr76y",
      "amount": "1000.0",
      "status": "Received",
      "reference": "OJM6Q1W84K",
      "till_number": "514459",
      "sender_phone_number": "+254708374149",
      "origination_time": "2026-03-01T10:43:19+03:00",
      "sender_first_name": "Alice"
    }
  }
}`)
	ctx := context.Background()

	event, err := kopokopo.ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	_, err = fx.service.Process(ctx, ProcessInput{Event: event, RawBody: body, Signature: "deadbeef"})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("want signature error got %v", err)
	}
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("signature error kind want invalid_input got %s", KindOf(err))
	}
	if count := countRecords(t, fx.db); count != 0 {
		t.Fatalf("ledger count want 0 got %d", count)
	}

	event, err = kopokopo.ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	result, err := fx.service.Process(ctx, ProcessInput{Event: event, RawBody: body, Signature: kopokopo.Sign("whsec_test", body)})
	if err != nil {
		t.Fatalf("signed webhook failed: %v", err)
	}
	if result.LedgerOutcome != repository.RecordInserted || result.Effect != EffectSubscriptionExtended {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCallbackServiceSignatureWithCachedRoutingGateway(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	gateway := models.GatewayConfig{
		TenantID:   fx.tenant.ID,
		Provider:   constants.GatewayProviderKopokopo,
		Kind:       constants.GatewayKindBuygoods,
		BusinessID: "514460",
		ConfigJSON: models.JSON{"client_id": "cid", "client_secret": "csecret", "webhook_secret": "whsec_cached"},
		IsActive:   true,
	}
	mustCreate(t, fx.db, &gateway)
	routing := cache.BuildGatewayState([]models.GatewayConfig{gateway}).ToModels()[0]

	full, err := fx.service.accounts.Credentials(context.Background(), &routing)
	if err != nil {
		t.Fatalf("credentials failed: %v", err)
	}
	if full.ConfigJSON.GetString("webhook_secret") != "whsec_cached" {
		t.Fatalf("credentials not reloaded: %+v", full.ConfigJSON)
	}

	event := &callback.Event{Provider: constants.GatewayProviderKopokopo, ProviderTxnID: "OJM6CACHED"}
	target := &Target{Kind: TargetSubscriber, TenantID: fx.tenant.ID, Gateway: &routing}
	body := []byte(`{"topic":"buygoods_transaction_received"}`)
	if err := fx.service.verifySignature(context.Background(), target, event, ProcessInput{RawBody: body, Signature: "deadbeef"}); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("routing-only gateway must still enforce the signature, got %v", err)
	}
	if err := fx.service.verifySignature(context.Background(), target, event, ProcessInput{RawBody: body, Signature: kopokopo.Sign("whsec_cached", body)}); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestCallbackServiceRejectsNilEvent(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	if _, err := fx.service.Process(context.Background(), ProcessInput{}); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("want malformed error got %v", err)
	}
}
