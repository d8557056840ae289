package store

import "fmt"

type ErrorCode string

const (
	ERR_STORE_IO         ErrorCode = "StoreIO"
	ERR_BOOTSTRAP_FAILED ErrorCode = "BootstrapFailed"
	ERR_CORRUPT_STORE    ErrorCode = "CorruptStore"
)

type StoreError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeerr(code ErrorCode, err error, format string, args ...any) error {
	return &StoreError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
