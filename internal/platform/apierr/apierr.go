package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From classifies err into a status and a stable code for the error envelope.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var se *ragerr.SearchError
	if errors.As(err, &se) {
		switch se.Code {
		case ragerr.SearchInvalidQuery, ragerr.SearchInvalidParams:
			return New(http.StatusBadRequest, "search_"+se.Code, err)
		case ragerr.SearchEmbedFailed:
			return New(http.StatusBadGateway, "search_"+se.Code, err)
		default:
			return New(http.StatusInternalServerError, "search_"+se.Code, err)
		}
	}
	var ge *ragerr.GenerationError
	if errors.As(err, &ge) {
		switch ge.Code {
		case ragerr.GenerationTimeout:
			return New(http.StatusGatewayTimeout, "generation_timeout", err)
		case ragerr.GenerationUnavailable:
			return New(http.StatusServiceUnavailable, "generation_unavailable", err)
		default:
			return New(http.StatusBadGateway, "generation_"+ge.Code, err)
		}
	}
	if ragerr.IsConfiguration(err) {
		return New(http.StatusInternalServerError, "configuration_error", err)
	}
	if errors.Is(err, context.Canceled) {
		// 499 is nginx's "client closed request"; nobody reads it but the logs.
		return New(499, "request_canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(http.StatusGatewayTimeout, "deadline_exceeded", err)
	}
	return New(http.StatusInternalServerError, "internal_error", err)
}
