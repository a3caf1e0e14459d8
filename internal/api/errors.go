package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-meetup/internal/meetup"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newStatusError(status int) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    lower(http.StatusText(status)),
	}
}

func NewBadRequestError() *ApiError {
	return newStatusError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newStatusError(http.StatusNotFound)
}

func NewUnauthorizedError() *ApiError {
	return newStatusError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newStatusError(http.StatusForbidden)
}

func NewInternalServerError(err error) *ApiError {
	e := newStatusError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewBadGatewayError(err error) *ApiError {
	e := newStatusError(http.StatusBadGateway)
	e.Err = err
	return e
}

// NewServiceError converts an error returned by the meetup service. Domain
// errors keep their code and message, anything else is an internal error.
func NewServiceError(err error) *ApiError {
	var e *meetup.Error
	if !errors.As(err, &e) {
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: meetup.HTTPStatus(err),
		Code:       e.Code,
		Message:    e.Message,
		Err:        err,
	}
}
