// Package errors provides structured error handling for the ledger surface.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeSessionInactive       Code = "SESSION_INACTIVE"
	CodeSessionExpired        Code = "SESSION_EXPIRED"
	CodeSessionEmptyInitiator Code = "SESSION_EMPTY_INITIATOR"

	// Touch errors
	CodeTouchEmptyActor Code = "TOUCH_EMPTY_ACTOR"

	// Authorization errors
	CodeNotAuthorized Code = "NOT_AUTHORIZED"

	// Query errors
	CodeRangeTooWide  Code = "RANGE_TOO_WIDE"
	CodeRangeInverted Code = "RANGE_INVERTED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeSessionEmptyInitiator,
		CodeTouchEmptyActor,
		CodeRangeTooWide,
		CodeRangeInverted:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSessionInactive,
		CodeSessionExpired:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeSessionNotFound:
		return codes.NotFound

	// PermissionDenied - caller lacks rights on the resource
	case CodeNotAuthorized:
		return codes.PermissionDenied

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for the JSON API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionEmptyInitiator,
		CodeTouchEmptyActor,
		CodeRangeTooWide,
		CodeRangeInverted:
		return http.StatusBadRequest
	case CodeSessionInactive,
		CodeSessionExpired:
		return http.StatusConflict
	case CodeNotFound,
		CodeSessionNotFound:
		return http.StatusNotFound
	case CodeNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
