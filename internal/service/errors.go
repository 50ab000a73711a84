package service

import (
	"errors"

	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/payment/kopokopo"
)

var (
	ErrMalformedCallback       = errors.New("malformed callback")
	ErrInvalidAmount           = errors.New("invalid callback amount")
	ErrMissingPhone            = errors.New("missing payer phone")
	ErrSignatureInvalid        = errors.New("callback signature invalid")
	ErrUnknownTenant           = errors.New("unknown tenant for business id")
	ErrAmbiguousTenant         = errors.New("business id matches more than one tenant")
	ErrSubscriberNotFound      = errors.New("subscriber not found")
	ErrIncompleteConfiguration = errors.New("subscriber package configuration incomplete")
	ErrVoucherNotFound         = errors.New("voucher not found")
	ErrVoucherStateInvalid     = errors.New("voucher state invalid")
	ErrLedgerWriteFailed       = errors.New("ledger write failed")
	ErrNotificationFailed      = errors.New("notification failed")
)

// ErrorKind 错误分类
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindInvalidInput
	KindConflict
	KindFatal
)

// String 返回分类名称
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	default:
		return "fatal"
	}
}

// KindOf 对错误进行分类，未知错误视为 Fatal
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnknownTenant),
		errors.Is(err, ErrSubscriberNotFound),
		errors.Is(err, ErrVoucherNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformedCallback),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingPhone),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrIncompleteConfiguration),
		errors.Is(err, callback.ErrMalformed),
		errors.Is(err, callback.ErrInvalidAmount),
		errors.Is(err, callback.ErrMissingPhone),
		errors.Is(err, kopokopo.ErrSignatureInvalid):
		return KindInvalidInput
	case errors.Is(err, ErrAmbiguousTenant),
		errors.Is(err, ErrVoucherStateInvalid):
		return KindConflict
	default:
		return KindFatal
	}
}
