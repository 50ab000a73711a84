package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/repository"
)

const defaultLedgerTimeout = 10 * time.Second

// LedgerInput 入账参数
type LedgerInput struct {
	Event         *callback.Event
	TenantID      uint
	BillReference string
	BusinessID    string
	SourceType    string
}

// LedgerService 回调流水账本
type LedgerService struct {
	repo    repository.TransactionRepository
	timeout time.Duration
}

// NewLedgerService 创建账本服务
func NewLedgerService(repo repository.TransactionRepository, timeout time.Duration) *LedgerService {
	if timeout <= 0 {
		timeout = defaultLedgerTimeout
	}
	return &LedgerService{repo: repo, timeout: timeout}
}

// Record 写入流水，写入不受请求取消影响，流水号重复返回 RecordDuplicate
func (s *LedgerService) Record(ctx context.Context, input LedgerInput) (repository.RecordOutcome, error) {
	if input.Event == nil {
		return 0, fmt.Errorf("%w: empty event", ErrLedgerWriteFailed)
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	record := buildTransactionRecord(input)
	outcome, err := s.repo.Record(writeCtx, record)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}
	return outcome, nil
}

// GetByProviderTxnID 查询单条流水
func (s *LedgerService) GetByProviderTxnID(providerTxnID string) (*models.TransactionRecord, error) {
	return s.repo.GetByProviderTxnID(providerTxnID)
}

// List 流水列表
func (s *LedgerService) List(filter repository.TransactionListFilter) ([]models.TransactionRecord, int64, error) {
	return s.repo.List(filter)
}

func buildTransactionRecord(input LedgerInput) *models.TransactionRecord {
	event := input.Event
	status := constants.TxnStatusFailed
	if event.Success {
		status = constants.TxnStatusSuccess
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return &models.TransactionRecord{
		ProviderTxnID:    strings.TrimSpace(event.ProviderTxnID),
		TenantID:         input.TenantID,
		Provider:         event.Provider,
		Channel:          event.Channel,
		TxnKind:          event.TxnKind,
		Status:           status,
		ResultCode:       event.ResultCode,
		ResultDesc:       event.ResultDesc,
		Amount:           models.NewMoneyFromDecimal(event.Amount),
		Phone:            event.Phone,
		PayerName:        event.PayerName,
		BillReference:    input.BillReference,
		CorrelationToken: event.CorrelationToken,
		BusinessID:       input.BusinessID,
		SourceType:       input.SourceType,
		AccountBalance:   event.AccountBalance,
		OccurredAt:       occurredAt,
		RawPayload:       models.JSON(event.Raw),
	}
}
