package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeKeyResolutionMiss Code = "KEY_RESOLUTION_MISS"
	CodeWriteFailure      Code = "WRITE_FAILURE"
	CodeSchemaMismatch    Code = "SCHEMA_MISMATCH"
	CodeCanceled          Code = "CANCELED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Recovery describes how callers are expected to react to a code.
type Recovery string

const (
	// RecoveryRetry errors are transient and retried locally.
	RecoveryRetry Recovery = "retry"
	// RecoveryDegrade errors keep the affected row and flag it.
	RecoveryDegrade Recovery = "degrade"
	// RecoverySurface errors abort the operation and are reported to the caller.
	RecoverySurface Recovery = "surface"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	Recovery       Recovery
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Recovery:       RecoverySurface,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		Recovery:      RecoverySurface,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		Recovery:      RecoverySurface,
		PublicMessage: "conflict detected",
	},
	CodeSourceUnavailable: {
		HTTPStatus:     http.StatusBadGateway,
		Recovery:       RecoverySurface,
		PublicMessage:  "order source unavailable",
		DetailsAllowed: true,
	},
	CodeRateLimited: {
		HTTPStatus:    http.StatusTooManyRequests,
		Retryable:     true,
		Recovery:      RecoveryRetry,
		PublicMessage: "rate limit exceeded",
	},
	CodeKeyResolutionMiss: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Recovery:       RecoveryDegrade,
		PublicMessage:  "order reference could not be resolved",
		DetailsAllowed: true,
	},
	CodeWriteFailure: {
		HTTPStatus:     http.StatusBadGateway,
		Recovery:       RecoverySurface,
		PublicMessage:  "destination write partially applied",
		DetailsAllowed: true,
	},
	CodeSchemaMismatch: {
		HTTPStatus:     http.StatusConflict,
		Recovery:       RecoverySurface,
		PublicMessage:  "destination schema mismatch",
		DetailsAllowed: true,
	},
	CodeCanceled: {
		HTTPStatus:    499,
		Recovery:      RecoverySurface,
		PublicMessage: "operation canceled",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		Recovery:      RecoverySurface,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		Recovery:       RecoveryRetry,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	for err != nil {
		typed := As(err)
		if typed == nil {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// CodeOf returns the outermost typed code or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}
