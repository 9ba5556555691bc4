package bizerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sqlreview/misc"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

type sentinelRespond struct {
	targets []error
	status  int
	code    string
	// empty message means the message of the matched error
	message string
}

// sentinelResponds is checked in order, the first match wins.
var sentinelResponds = []sentinelRespond{
	{targets: []error{io.EOF}, status: http.StatusBadRequest, code: "bad_request.body_not_found", message: "body not found"},
	{targets: []error{ErrUnauthenticated}, status: http.StatusUnauthorized, code: "common.unauthenticated", message: "unauthenticated"},
	{targets: []error{ErrForbidden}, status: http.StatusForbidden, code: "security.forbidden", message: "access forbidden"},
	{targets: []error{ErrInvalidPassword}, status: http.StatusBadRequest, code: "security.invalid_password"},
	{targets: []error{ErrOutOfRunWindow}, status: http.StatusBadRequest, code: "sqlworkflow.out_of_run_window"},
	{targets: []error{ErrRunDateRequired, ErrRunDateInPast, ErrCancelRemarkRequired}, status: http.StatusBadRequest, code: CodeBadParam},
	{targets: []error{ErrStateInvalid}, status: http.StatusConflict, code: "sqlworkflow.state_invalid", message: "workflow state invalid"},
	{targets: []error{ErrStatusConflict}, status: http.StatusConflict, code: "sqlworkflow.status_conflict"},
	{targets: []error{ErrAuditNotPending}, status: http.StatusConflict, code: "audit.not_pending"},
	{targets: []error{gorm.ErrRecordNotFound, ErrNotFound}, status: http.StatusNotFound, code: "common.record_not_found", message: "record not found"},
}

func ErrorHandling() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if ret := recover(); ret != nil {
				err, ok := ret.(error)
				if !ok {
					err = fmt.Errorf("%v", ret)
				}
				HandleError(c, err)
			} else if err := c.Errors.Last(); err != nil {
				HandleError(c, err)
			}
		}()
		c.Next()
	}
}

func HandleError(c *gin.Context, err error) {
	cause := err
	var ginErr *gin.Error
	if errors.As(err, &ginErr) {
		cause = ginErr.Err
	}

	// transaction failures are logged with their context where they happen
	var txErr *ErrTransaction
	if !errors.As(cause, &txErr) {
		logrus.Error(err)
	}

	c.JSON(Respond(cause))
	c.Abort()
}

// Respond maps err to the status and body of an error response.
func Respond(err error) (int, *misc.ErrorBody) {
	if bizErr, ok := err.(BizError); ok {
		detail := bizErr.Respond()
		return detail.Status, &misc.ErrorBody{Code: detail.Code, Message: detail.Message, Data: detail.Data}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest, &misc.ErrorBody{Code: "bad_request.invalid_body_format", Message: "invalid body format", Data: syntaxErr.Error()}
	}
	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, &misc.ErrorBody{Code: "bad_request.validation_failed", Message: "validation failed", Data: validationErr.Error()}
	}

	for _, r := range sentinelResponds {
		for _, target := range r.targets {
			if !errors.Is(err, target) {
				continue
			}
			message := r.message
			if message == "" {
				message = err.Error()
			}
			return r.status, &misc.ErrorBody{Code: r.code, Message: message}
		}
	}

	return http.StatusInternalServerError, &misc.ErrorBody{Code: CodeInternalServerError, Message: err.Error()}
}
