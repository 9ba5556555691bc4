package bizerror

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("record not found")
	ErrInvalidPassword = errors.New("invalid password")

	ErrStateInvalid         = errors.New("workflow state invalid")
	ErrStatusConflict       = errors.New("workflow status changed concurrently")
	ErrOutOfRunWindow       = errors.New("not in the executable time range, please resubmit the workflow if the run date needs to change")
	ErrRunDateRequired      = errors.New("run date is required")
	ErrRunDateInPast        = errors.New("run date must be later than the current time")
	ErrCancelRemarkRequired = errors.New("cancel remark is required")
	ErrAuditNotPending      = errors.New("audit is not pending")
)

const (
	CodeBadParam            = "common.bad_param"
	CodeInternalServerError = "common.internal_server_error"
	CodeTransactionFailed   = "sqlworkflow.transaction_failed"
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return CodeBadParam
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := CodeBadParam
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: CodeBadParam, Message: message, Data: nil}
}

// ErrTransaction wraps any failure raised inside a transition transaction, after rollback.
type ErrTransaction struct {
	Operation string
	Cause     error
}

func (e *ErrTransaction) Unwrap() error {
	return e.Cause
}
func (e *ErrTransaction) Error() string {
	if e.Cause == nil {
		return e.Operation + " failed"
	}
	return e.Operation + " failed: " + e.Cause.Error()
}
func (e *ErrTransaction) Respond() *BizErrorDetail {
	if errors.Is(e.Cause, ErrStatusConflict) {
		return &BizErrorDetail{Status: http.StatusConflict, Code: "sqlworkflow.status_conflict", Message: e.Error(), Cause: e.Cause}
	}
	return &BizErrorDetail{Status: http.StatusInternalServerError, Code: CodeTransactionFailed, Message: e.Error(), Cause: e.Cause}
}
