package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/repository"

	"github.com/shopspring/decimal"
)

func createPendingVoucher(t *testing.T, fx *callbackFixture, code string, expiresAt time.Time) models.Voucher {
	t.Helper()
	voucher := models.Voucher{
		TenantID:         fx.tenant.ID,
		Code:             code,
		PackageID:        fx.pkg.ID,
		Phone:            "254708374149",
		Amount:           models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		CorrelationToken: "tok-" + code,
		Status:           constants.VoucherStatusPending,
		ExpiresAt:        expiresAt,
	}
	mustCreate(t, fx.db, &voucher)
	return voucher
}

func TestVoucherServiceApplyCallbackOnlyFromPending(t *testing.T) {
	notifier := &recordingNotifier{}
	fx := setupCallbackServiceTest(t, nil)
	svc := NewVoucherService(repository.NewVoucherRepository(fx.db), notifier)
	voucher := createPendingVoucher(t, fx, "HS-1001", fx.now.Add(time.Hour))
	event := &callback.Event{ProviderTxnID: "NLJ7RT61SV", Success: true, Amount: decimal.NewFromInt(50)}

	outcome, err := svc.ApplyCallback(context.Background(), &voucher, event)
	if err != nil {
		t.Fatalf("apply callback failed: %v", err)
	}
	if !outcome.Transitioned || outcome.Status != constants.VoucherStatusActive {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	// 过期的内存副本仍为 pending，条件更新必须拦截
	stale := voucher
	stale.Status = constants.VoucherStatusPending
	again, err := svc.ApplyCallback(context.Background(), &stale, &callback.Event{ProviderTxnID: "ws_CO_x", Success: false})
	if err != nil {
		t.Fatalf("stale apply failed: %v", err)
	}
	if again.Transitioned {
		t.Fatalf("stale callback should not transition")
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusActive {
		t.Fatalf("status want active got %s", stored.Status)
	}
	if notifier.count() != 1 {
		t.Fatalf("want 1 notification got %d", notifier.count())
	}
}

func TestVoucherServiceLazyExpiry(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	svc := NewVoucherService(repository.NewVoucherRepository(fx.db), nil)
	svc.now = func() time.Time { return fx.now }
	createPendingVoucher(t, fx, "HS-1002", fx.now.Add(-time.Minute))
	createPendingVoucher(t, fx, "HS-1003", fx.now.Add(time.Hour))

	expired, err := svc.GetForAccess(context.Background(), "HS-1002")
	if err != nil {
		t.Fatalf("get expired voucher failed: %v", err)
	}
	if expired.Status != constants.VoucherStatusExpired {
		t.Fatalf("status want expired got %s", expired.Status)
	}
	fresh, err := svc.GetForAccess(context.Background(), "HS-1003")
	if err != nil {
		t.Fatalf("get fresh voucher failed: %v", err)
	}
	if fresh.Status != constants.VoucherStatusPending {
		t.Fatalf("status want pending got %s", fresh.Status)
	}
	if _, err := svc.GetForAccess(context.Background(), "HS-404"); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("want voucher not found got %v", err)
	}
}

func TestVoucherServiceMarkUsed(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	svc := NewVoucherService(repository.NewVoucherRepository(fx.db), nil)
	svc.now = func() time.Time { return fx.now }
	voucher := createPendingVoucher(t, fx, "HS-1004", fx.now.Add(time.Hour))

	if _, err := svc.MarkUsed(context.Background(), "HS-1004"); !errors.Is(err, ErrVoucherStateInvalid) {
		t.Fatalf("pending voucher want state invalid got %v", err)
	}
	if err := fx.db.Model(&models.Voucher{}).Where("id = ?", voucher.ID).Update("status", constants.VoucherStatusActive).Error; err != nil {
		t.Fatalf("activate voucher failed: %v", err)
	}
	used, err := svc.MarkUsed(context.Background(), "HS-1004")
	if err != nil {
		t.Fatalf("mark used failed: %v", err)
	}
	if used.Status != constants.VoucherStatusUsed || used.LastUsedAt == nil {
		t.Fatalf("unexpected voucher: %+v", used)
	}
	if want := fx.now.Add(30 * 24 * time.Hour); !UsageExpiry(used).Equal(want) {
		t.Fatalf("usage expiry want %v got %v", want, UsageExpiry(used))
	}
	if _, err := svc.MarkUsed(context.Background(), "HS-1004"); !errors.Is(err, ErrVoucherStateInvalid) {
		t.Fatalf("used voucher want state invalid got %v", err)
	}
}

func TestVoucherServiceExpireDue(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	svc := NewVoucherService(repository.NewVoucherRepository(fx.db), nil)
	svc.now = func() time.Time { return fx.now }
	activeDue := createPendingVoucher(t, fx, "HS-2001", fx.now.Add(-time.Hour))
	activeFresh := createPendingVoucher(t, fx, "HS-2002", fx.now.Add(time.Hour))
	pendingDue := createPendingVoucher(t, fx, "HS-2003", fx.now.Add(-time.Hour))
	cancelled := createPendingVoucher(t, fx, "HS-2004", fx.now.Add(-time.Hour))
	for id, status := range map[uint]string{
		activeDue.ID:   constants.VoucherStatusActive,
		activeFresh.ID: constants.VoucherStatusActive,
		cancelled.ID:   constants.VoucherStatusCancelled,
	} {
		if err := fx.db.Model(&models.Voucher{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			t.Fatalf("set voucher status failed: %v", err)
		}
	}

	affected, err := svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("expire due failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected want 1 got %d", affected)
	}
	want := map[uint]string{
		activeDue.ID:   constants.VoucherStatusExpired,
		activeFresh.ID: constants.VoucherStatusActive,
		pendingDue.ID:  constants.VoucherStatusPending,
		cancelled.ID:   constants.VoucherStatusCancelled,
	}
	for id, status := range want {
		var stored models.Voucher
		if err := fx.db.First(&stored, id).Error; err != nil {
			t.Fatalf("reload voucher failed: %v", err)
		}
		if stored.Status != status {
			t.Fatalf("voucher %s want %s got %s", stored.Code, status, stored.Status)
		}
	}
}

func TestVoucherSweepLeavesPendingForLateCallback(t *testing.T) {
	fx := setupCallbackServiceTest(t, nil)
	voucher := createPendingVoucher(t, fx, "HS-2101", fx.now.Add(-time.Minute))

	if _, err := fx.service.vouchers.ExpireDue(context.Background()); err != nil {
		t.Fatalf("expire due failed: %v", err)
	}
	result, err := fx.service.Process(context.Background(), ProcessInput{Event: stkEvent(t, voucher.CorrelationToken, "NLJ7RT99ZZ", 0, "50")})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Effect != EffectVoucherActivated {
		t.Fatalf("effect want %s got %s", EffectVoucherActivated, result.Effect)
	}
	var stored models.Voucher
	if err := fx.db.First(&stored, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if stored.Status != constants.VoucherStatusActive || stored.PaymentReference != "NLJ7RT99ZZ" {
		t.Fatalf("unexpected voucher state: %s ref=%s", stored.Status, stored.PaymentReference)
	}
}
