// Package faults defines the protocol error taxonomy.
//
// Every protocol operation aborts with a *Error carrying a stable Code and a
// Kind. Callers match with errors.Is against the exported sentinels; the
// Detail string is informational only and never participates in matching.
package faults

import (
	"errors"
	"fmt"
)

// Kind groups codes by how a caller is expected to react.
type Kind string

const (
	// KindAuthorization: caller lacks the required role. No partial effect.
	KindAuthorization Kind = "AUTHORIZATION"
	// KindPrecondition: entity state forbids the operation. Retry after fixing state.
	KindPrecondition Kind = "PRECONDITION"
	// KindValidation: input rejected before any mutation.
	KindValidation Kind = "VALIDATION"
	// KindExternal: a collaborator failed. Only surfaced by infrastructure paths,
	// never by notification-bearing operations.
	KindExternal Kind = "EXTERNAL"
)

// Code is the stable machine-readable reason.
type Code string

const (
	CodeOnlyOwner             Code = "OnlyOwner"
	CodeOnlySoleAuthority     Code = "OnlySoleAuthority"
	CodeNotCouncilMember      Code = "NotCouncilMember"
	CodeUnauthorized          Code = "Unauthorized"
	CodeNotInvestor           Code = "NotInvestor"
	CodeAlreadyMember         Code = "AlreadyMember"
	CodeNotMember             Code = "NotMember"
	CodeQuorumBroken          Code = "QuorumBroken"
	CodeAlreadyReleased       Code = "AlreadyReleased"
	CodeTrancheVetoed         Code = "TrancheVetoed"
	CodeComplianceNotVerified Code = "ComplianceNotVerified"
	CodeProofMismatch         Code = "ProofMismatch"
	CodeNotActive             Code = "NotActive"
	CodeNotMatured            Code = "NotMatured"
	CodeNotFoundOrInactive    Code = "NotFoundOrInactive"
	CodeVetoAlreadyOpen       Code = "VetoAlreadyOpen"
	CodeOperationsSuspended   Code = "OperationsSuspended"
	CodeAlreadyAnchored       Code = "AlreadyAnchored"
	CodeNotFound              Code = "NotFound"
	CodeInsufficientFunds     Code = "InsufficientFunds"
	CodeNonPositiveAmount     Code = "NonPositiveAmount"
	CodeInvalidCommitment     Code = "InvalidCommitment"
	CodeReasonRequired        Code = "ReasonRequired"
	CodeInvalidTarget         Code = "InvalidTarget"
	CodeArrayLengthMismatch   Code = "ArrayLengthMismatch"
	CodeIndexOutOfBounds      Code = "IndexOutOfBounds"
	CodeInvalidQuorum         Code = "InvalidQuorum"
	CodeInvalidPrincipal      Code = "InvalidPrincipal"
	CodeInvalidBasisPoints    Code = "InvalidBasisPoints"
	CodeBelowMinimum          Code = "BelowMinimum"
	CodeInvalidTripID         Code = "InvalidTripID"
	CodeNotAContract          Code = "NotAContract"
	CodeInvalidScore          Code = "InvalidScore"
)

var kinds = map[Code]Kind{
	CodeOnlyOwner:             KindAuthorization,
	CodeOnlySoleAuthority:     KindAuthorization,
	CodeNotCouncilMember:      KindAuthorization,
	CodeUnauthorized:          KindAuthorization,
	CodeNotInvestor:           KindAuthorization,
	CodeAlreadyMember:         KindPrecondition,
	CodeNotMember:             KindPrecondition,
	CodeQuorumBroken:          KindPrecondition,
	CodeAlreadyReleased:       KindPrecondition,
	CodeTrancheVetoed:         KindPrecondition,
	CodeComplianceNotVerified: KindPrecondition,
	CodeProofMismatch:         KindPrecondition,
	CodeNotActive:             KindPrecondition,
	CodeNotMatured:            KindPrecondition,
	CodeNotFoundOrInactive:    KindPrecondition,
	CodeVetoAlreadyOpen:       KindPrecondition,
	CodeOperationsSuspended:   KindPrecondition,
	CodeAlreadyAnchored:       KindPrecondition,
	CodeNotFound:              KindPrecondition,
	CodeInsufficientFunds:     KindPrecondition,
	CodeNonPositiveAmount:     KindValidation,
	CodeInvalidCommitment:     KindValidation,
	CodeReasonRequired:        KindValidation,
	CodeInvalidTarget:         KindValidation,
	CodeArrayLengthMismatch:   KindValidation,
	CodeIndexOutOfBounds:      KindValidation,
	CodeInvalidQuorum:         KindValidation,
	CodeInvalidPrincipal:      KindValidation,
	CodeInvalidBasisPoints:    KindValidation,
	CodeBelowMinimum:          KindValidation,
	CodeInvalidTripID:         KindValidation,
	CodeNotAContract:          KindValidation,
	CodeInvalidScore:          KindValidation,
}

// Error is a protocol abort.
type Error struct {
	Code   Code   `json:"code"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is matches on Code so that detailed errors compare equal to sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an error for code with a formatted detail.
func New(code Code, format string, args ...any) *Error {
	k, ok := kinds[code]
	if !ok {
		k = KindExternal
	}
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{Code: code, Kind: k, Detail: detail}
}

func sentinel(code Code) *Error {
	return &Error{Code: code, Kind: kinds[code]}
}

// Sentinels for errors.Is.
var (
	ErrOnlyOwner             = sentinel(CodeOnlyOwner)
	ErrOnlySoleAuthority     = sentinel(CodeOnlySoleAuthority)
	ErrNotCouncilMember      = sentinel(CodeNotCouncilMember)
	ErrUnauthorized          = sentinel(CodeUnauthorized)
	ErrNotInvestor           = sentinel(CodeNotInvestor)
	ErrAlreadyMember         = sentinel(CodeAlreadyMember)
	ErrNotMember             = sentinel(CodeNotMember)
	ErrQuorumBroken          = sentinel(CodeQuorumBroken)
	ErrAlreadyReleased       = sentinel(CodeAlreadyReleased)
	ErrTrancheVetoed         = sentinel(CodeTrancheVetoed)
	ErrComplianceNotVerified = sentinel(CodeComplianceNotVerified)
	ErrProofMismatch         = sentinel(CodeProofMismatch)
	ErrNotActive             = sentinel(CodeNotActive)
	ErrNotMatured            = sentinel(CodeNotMatured)
	ErrNotFoundOrInactive    = sentinel(CodeNotFoundOrInactive)
	ErrVetoAlreadyOpen       = sentinel(CodeVetoAlreadyOpen)
	ErrOperationsSuspended   = sentinel(CodeOperationsSuspended)
	ErrAlreadyAnchored       = sentinel(CodeAlreadyAnchored)
	ErrNotFound              = sentinel(CodeNotFound)
	ErrInsufficientFunds     = sentinel(CodeInsufficientFunds)
	ErrNonPositiveAmount     = sentinel(CodeNonPositiveAmount)
	ErrInvalidCommitment     = sentinel(CodeInvalidCommitment)
	ErrReasonRequired        = sentinel(CodeReasonRequired)
	ErrInvalidTarget         = sentinel(CodeInvalidTarget)
	ErrArrayLengthMismatch   = sentinel(CodeArrayLengthMismatch)
	ErrIndexOutOfBounds      = sentinel(CodeIndexOutOfBounds)
	ErrInvalidQuorum         = sentinel(CodeInvalidQuorum)
	ErrInvalidPrincipal      = sentinel(CodeInvalidPrincipal)
	ErrInvalidBasisPoints    = sentinel(CodeInvalidBasisPoints)
	ErrBelowMinimum          = sentinel(CodeBelowMinimum)
	ErrInvalidTripID         = sentinel(CodeInvalidTripID)
	ErrNotAContract          = sentinel(CodeNotAContract)
	ErrInvalidScore          = sentinel(CodeInvalidScore)
)

// KindOf reports the kind of a protocol error, or "" for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CodeOf reports the code of a protocol error, or "" for foreign errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
