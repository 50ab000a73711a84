package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/lipa-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordOutcome 流水写入结果
type RecordOutcome int

const (
	// RecordInserted 首次写入
	RecordInserted RecordOutcome = iota + 1
	// RecordDuplicate 流水号已存在，本次写入为空操作
	RecordDuplicate
)

// String 返回写入结果名称
func (o RecordOutcome) String() string {
	switch o {
	case RecordInserted:
		return "inserted"
	case RecordDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// TransactionRepository 回调流水数据访问接口
type TransactionRepository interface {
	Record(ctx context.Context, record *models.TransactionRecord) (RecordOutcome, error)
	GetByProviderTxnID(providerTxnID string) (*models.TransactionRecord, error)
	List(filter TransactionListFilter) ([]models.TransactionRecord, int64, error)
	WithTx(tx *gorm.DB) *GormTransactionRepository
}

// GormTransactionRepository GORM 实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建流水仓库
func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormTransactionRepository) WithTx(tx *gorm.DB) *GormTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionRepository{db: tx}
}

// Record 按网关流水号幂等写入，流水号冲突返回 RecordDuplicate
func (r *GormTransactionRepository) Record(ctx context.Context, record *models.TransactionRecord) (RecordOutcome, error) {
	if record == nil || strings.TrimSpace(record.ProviderTxnID) == "" {
		return 0, errors.New("transaction record requires provider_txn_id")
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_txn_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return RecordDuplicate, nil
	}
	return RecordInserted, nil
}

// GetByProviderTxnID 根据网关流水号获取流水
func (r *GormTransactionRepository) GetByProviderTxnID(providerTxnID string) (*models.TransactionRecord, error) {
	providerTxnID = strings.TrimSpace(providerTxnID)
	if providerTxnID == "" {
		return nil, nil
	}
	var record models.TransactionRecord
	if err := r.db.Where("provider_txn_id = ?", providerTxnID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// List 流水列表
func (r *GormTransactionRepository) List(filter TransactionListFilter) ([]models.TransactionRecord, int64, error) {
	query := r.db.Model(&models.TransactionRecord{})

	if filter.TenantID != 0 {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.BillReference != "" {
		query = query.Where("bill_reference = ?", filter.BillReference)
	}
	if filter.Phone != "" {
		query = query.Where("phone = ?", filter.Phone)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, args := containsAny(dialectName(r.db), []string{"provider_txn_id", "bill_reference", "payer_name"}, search)
		query = query.Where(condition, args...)
	}
	if filter.OccurredFrom != nil {
		query = query.Where("occurred_at >= ?", *filter.OccurredFrom)
	}
	if filter.OccurredTo != nil {
		query = query.Where("occurred_at <= ?", *filter.OccurredTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Page, filter.PageSize)

	var records []models.TransactionRecord
	if err := query.Order("occurred_at desc, id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
