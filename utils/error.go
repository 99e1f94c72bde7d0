package utils

import "errors"

// Sentinel error kinds for the custody ledger. Callers classify with
// errors.Is; operation code wraps these with fmt.Errorf("%w: ...") detail.
var (
	ErrValidation              = errors.New("validation error")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrUnitNotAvailable        = errors.New("unit not available")
	ErrUnitNotInstallable      = errors.New("unit not installable")
	ErrInsufficientDebtBalance = errors.New("insufficient debt balance")
	ErrOverpayment             = errors.New("payment exceeds outstanding debt")
	ErrInvalidState            = errors.New("invalid state transition")
	ErrConcurrencyConflict     = errors.New("concurrency conflict")

	ErrorRecordNotFound = errors.New("record not found")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
