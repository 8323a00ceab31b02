package service

import "errors"

var (
	ErrPlanNotPurchasable = errors.New("plan cannot be purchased")
	ErrModelNotAllowed    = errors.New("model not allowed")
	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidPayment     = errors.New("order id, payment id and signature are required")
	ErrChatNotFound       = errors.New("chat not found")
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrMessageTooLong     = errors.New("message is too long")
	ErrExportDisabled     = errors.New("transcript export is not configured")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
	ErrInvalidChat        = errors.New("invalid chat")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
)
