package service

import "errors"

// 服务层业务错误
var (
	ErrNotFound             = errors.New("record not found")
	ErrProducerNotFound     = errors.New("producer not found")
	ErrProducerDisabled     = errors.New("producer disabled")
	ErrPayoutNotFound       = errors.New("payout schedule not found")
	ErrInvalidAmount        = errors.New("gross amount must be positive")
	ErrInvalidRate          = errors.New("commission rate must be between 0 and 1")
	ErrSourceRefRequired    = errors.New("source payment reference is required")
	ErrCancelNotAllowed     = errors.New("only scheduled payouts can be cancelled")
	ErrRetryNotAllowed      = errors.New("payout is not eligible for retry")
	ErrReverseNotAllowed    = errors.New("only completed payouts can be reversed")
	ErrReverseNotSupported  = errors.New("provider does not support transfer reversal")
	ErrBypassNotAllowed     = errors.New("hold bypass is not allowed")
	ErrBypassReasonRequired = errors.New("hold bypass reason is required")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrInvalidPassword      = errors.New("current password is incorrect")
	ErrWeakPassword         = errors.New("password does not meet minimum strength")
)
