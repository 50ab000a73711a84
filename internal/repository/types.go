package repository

import "time"

// TransactionListFilter 查询回调流水的过滤条件
type TransactionListFilter struct {
	Page          int
	PageSize      int
	TenantID      uint
	Provider      string
	Status        string
	BillReference string
	Phone         string
	Search        string
	OccurredFrom  *time.Time
	OccurredTo    *time.Time
}
