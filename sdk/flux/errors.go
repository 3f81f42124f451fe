package flux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Failure kinds. Every non-success outcome of a call wraps exactly one of these.
var (
	ErrTimeout            = errors.New("flux: request timed out")
	ErrUnreachable        = errors.New("flux: api unreachable")
	ErrConflict           = errors.New("flux: conflict")
	ErrNotFound           = errors.New("flux: not found")
	ErrRateLimited        = errors.New("flux: rate limited")
	ErrValidationRejected = errors.New("flux: rejected by api validation")
	ErrUnexpected         = errors.New("flux: unexpected api response")
)

// Error describes a failed call.
type Error struct {
	Op         string
	Resource   string
	StatusCode int
	Body       string
	Err        error
	cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

// InputError reports inputs rejected locally, before any request is made.
type InputError struct {
	Resource string
	Fields   map[string]string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s input: %d field(s) failed validation", e.Resource, len(e.Fields))
}

// HTTPStatus returns the status a page should render for err.
func HTTPStatus(err error) int {
	var ie *InputError
	if errors.As(err, &ie) {
		return http.StatusBadRequest
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrValidationRejected):
		return http.StatusBadRequest
	}
	var fe *Error
	if errors.As(err, &fe) && fe.StatusCode >= 500 {
		return fe.StatusCode
	}
	return http.StatusInternalServerError
}

type operation struct {
	name    string
	method  string
	success int
	// noContent is a second success status meaning "nothing to return".
	noContent  int
	notFound   bool
	conflict   bool
	rejectable bool
}

var (
	opCreate = operation{name: "create", method: http.MethodPost, success: http.StatusCreated, conflict: true, rejectable: true}
	opList   = operation{name: "list", method: http.MethodGet, success: http.StatusOK, noContent: http.StatusNoContent}
	opGet    = operation{name: "get", method: http.MethodGet, success: http.StatusOK, notFound: true}
	opEdit   = operation{name: "edit", method: http.MethodPut, success: http.StatusOK, notFound: true, rejectable: true}
	opDelete = operation{name: "delete", method: http.MethodDelete, success: http.StatusNoContent, notFound: true}
)

// classify maps a response status to nil (success) or the failure kind for op.
// Only resources that validate on the server side surface 400 as a rejection.
func classify(op operation, validates bool, status int) error {
	switch {
	case status == op.success, op.noContent != 0 && status == op.noContent:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound && op.notFound:
		return ErrNotFound
	case status == http.StatusConflict && op.conflict:
		return ErrConflict
	case status == http.StatusBadRequest && op.rejectable && validates:
		return ErrValidationRejected
	default:
		return ErrUnexpected
	}
}

// transportKind separates timeouts from every other transport failure.
func transportKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}
