package shared

import (
	"errors"
	"fmt"
)

// Category groups error codes by how callers should react to them.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryStateConflict Category = "state_conflict"
	CategoryReferential   Category = "referential"
	CategoryPermission    Category = "permission"
	CategoryConcurrency   Category = "concurrency"
	CategoryInternal      Category = "internal"
)

// Code is a stable, client-facing error identifier.
type Code string

const (
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeInvalidWeight          Code = "INVALID_WEIGHT"
	CodeReasonRequired         Code = "REASON_REQUIRED"
	CodeReasonTooShort         Code = "REASON_TOO_SHORT"
	CodeFarmerNotFound         Code = "FARMER_NOT_FOUND"
	CodeWarehouseNotFound      Code = "WAREHOUSE_NOT_FOUND"
	CodeSettlementNotFound     Code = "SETTLEMENT_NOT_FOUND"
	CodeAcquisitionNotFound    Code = "ACQUISITION_NOT_FOUND"
	CodeActorNotFound          Code = "ACTOR_NOT_FOUND"
	CodeNotFound               Code = "NOT_FOUND"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeAlreadyAudited         Code = "ALREADY_AUDITED"
	CodeNotApproved            Code = "NOT_APPROVED"
	CodeAlreadyPaid            Code = "ALREADY_PAID"
	CodeNotRejected            Code = "NOT_REJECTED"
	CodeAlreadyDeleted         Code = "ALREADY_DELETED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeConcurrencyConflict    Code = "CONCURRENCY_CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

var codeCategories = map[Code]Category{
	CodeInvalidInput:           CategoryValidation,
	CodeInvalidWeight:          CategoryValidation,
	CodeReasonRequired:         CategoryValidation,
	CodeReasonTooShort:         CategoryValidation,
	CodeFarmerNotFound:         CategoryReferential,
	CodeWarehouseNotFound:      CategoryReferential,
	CodeSettlementNotFound:     CategoryReferential,
	CodeAcquisitionNotFound:    CategoryReferential,
	CodeActorNotFound:          CategoryReferential,
	CodeNotFound:               CategoryReferential,
	CodePermissionDenied:       CategoryPermission,
	CodeAlreadyAudited:         CategoryStateConflict,
	CodeNotApproved:            CategoryStateConflict,
	CodeAlreadyPaid:            CategoryStateConflict,
	CodeNotRejected:            CategoryStateConflict,
	CodeAlreadyDeleted:         CategoryStateConflict,
	CodeInvalidStateTransition: CategoryStateConflict,
	CodeConcurrencyConflict:    CategoryConcurrency,
	CodeInternal:               CategoryInternal,
}

// Category returns the taxonomy bucket for the code.
func (c Code) Category() Category {
	if cat, ok := codeCategories[c]; ok {
		return cat
	}
	return CategoryInternal
}

// DomainError is a typed rejection returned by the settlement core. Two
// DomainErrors match under errors.Is when their codes are equal.
type DomainError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewDomainError creates a new domain error.
func NewDomainError(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Errorf builds a DomainError with a formatted message.
func Errorf(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches on code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Category returns the taxonomy bucket of the error.
func (e *DomainError) Category() Category {
	return e.Code.Category()
}

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound               = NewDomainError(CodeNotFound, "resource not found")
	ErrInvalidInput           = NewDomainError(CodeInvalidInput, "invalid input")
	ErrInvalidWeight          = NewDomainError(CodeInvalidWeight, "gross weight must not be below tare weight")
	ErrReasonRequired         = NewDomainError(CodeReasonRequired, "a reason is required")
	ErrReasonTooShort         = NewDomainError(CodeReasonTooShort, "reason must be at least 5 characters")
	ErrFarmerNotFound         = NewDomainError(CodeFarmerNotFound, "farmer not found")
	ErrWarehouseNotFound      = NewDomainError(CodeWarehouseNotFound, "warehouse not found")
	ErrSettlementNotFound     = NewDomainError(CodeSettlementNotFound, "settlement not found")
	ErrAcquisitionNotFound    = NewDomainError(CodeAcquisitionNotFound, "acquisition not found")
	ErrActorNotFound          = NewDomainError(CodeActorNotFound, "actor not found")
	ErrPermissionDenied       = NewDomainError(CodePermissionDenied, "permission denied")
	ErrAlreadyAudited         = NewDomainError(CodeAlreadyAudited, "settlement has already been audited")
	ErrNotApproved            = NewDomainError(CodeNotApproved, "settlement is not approved")
	ErrAlreadyPaid            = NewDomainError(CodeAlreadyPaid, "settlement has already been paid")
	ErrNotRejected            = NewDomainError(CodeNotRejected, "acquisition is not awaiting correction")
	ErrAlreadyDeleted         = NewDomainError(CodeAlreadyDeleted, "acquisition has already been deleted")
	ErrInvalidStateTransition = NewDomainError(CodeInvalidStateTransition, "transition not allowed in current state")
	ErrConcurrencyConflict    = NewDomainError(CodeConcurrencyConflict, "resource was modified concurrently, retry later")
	ErrInternal               = NewDomainError(CodeInternal, "internal error")
)

// AsDomainError unwraps err into a DomainError when possible.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := AsDomainError(err); ok {
		return de.Code
	}
	return CodeInternal
}
