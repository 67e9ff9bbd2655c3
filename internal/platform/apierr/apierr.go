package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindExternalService     Kind = "external_service"
	KindCompilation         Kind = "compilation"
	KindJobFailure          Kind = "job_failure"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
)

// Error carries the failure kind and the pipeline stage it belongs to so the
// caller can retry that stage alone.
type Error struct {
	Kind   Kind
	Stage  string
	Code   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix = e.Stage + ": " + prefix
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	if e.Code != "" {
		return prefix + ": " + e.Code
	}
	return prefix
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, stage string, code string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Code: code, Status: statusForKind(kind), Err: err}
}

func Validation(stage string, err error) *Error {
	return New(KindValidation, stage, "validation_error", err)
}

func Validationf(stage string, format string, args ...any) *Error {
	return Validation(stage, fmt.Errorf(format, args...))
}

func External(stage string, err error) *Error {
	return New(KindExternalService, stage, "external_service_error", err)
}

func Compilation(err error) *Error {
	return New(KindCompilation, "script", "compilation_error", err)
}

func JobFailure(err error) *Error {
	return New(KindJobFailure, "audio", "job_failed", err)
}

func Conflict(err error) *Error {
	return New(KindConcurrencyConflict, "audio", "concurrency_conflict", err)
}

func NotFound(code string, err error) *Error {
	return New(KindNotFound, "", code, err)
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConcurrencyConflict:
		return http.StatusConflict
	case KindCompilation:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func as(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := as(err); ok {
		return e.Kind
	}
	return KindInternal
}

func StageOf(err error) string {
	if e, ok := as(err); ok {
		return e.Stage
	}
	return ""
}

func CodeOf(err error) string {
	if e, ok := as(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func StatusOf(err error) int {
	if e, ok := as(err); ok {
		if e.Status != 0 {
			return e.Status
		}
		return statusForKind(e.Kind)
	}
	return http.StatusInternalServerError
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// WithStage returns err tagged with stage unless it already carries one.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	if e, ok := as(err); ok {
		if e.Stage != "" {
			return err
		}
		cp := *e
		cp.Stage = stage
		return &cp
	}
	return New(KindInternal, stage, "internal_error", err)
}
