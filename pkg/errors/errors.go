package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，便于 errors.Is(err, ErrRunNotFound) 这类判断
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code string) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

var (
	ErrConfigLoad      = "CONFIG_LOAD_ERROR"
	ErrDatabaseConnect = "DATABASE_CONNECT_ERROR"
	ErrRPConnect       = "RPC_CONNECT_ERROR"
	ErrContractCall    = "CONTRACT_CALL_ERROR"
	ErrTransfer        = "TRANSFER_ERROR"
	ErrCSVLoad         = "CSV_LOAD_ERROR"
	ErrLedgerWrite     = "LEDGER_WRITE_ERROR"
	ErrInvalidAddress  = "INVALID_ADDRESS_ERROR"
	ErrInvalidAmount   = "INVALID_AMOUNT_ERROR"
	ErrRunNotFoundCode = "RUN_NOT_FOUND"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrInvalidStatus   = "INVALID_STATUS_ERROR"
	ErrRunStore        = "RUN_STORE_ERROR"
	ErrExport          = "EXPORT_ERROR"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrRunNotFound     = New(ErrRunNotFoundCode, "run not found", nil)
	ErrSessionMissing  = New(ErrSessionNotFound, "tracking session not found", nil)
	ErrStatusForbidden = New(ErrInvalidStatus, "status transition not allowed", nil)
)
