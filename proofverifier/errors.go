package proofverifier

import (
	"errors"
	"fmt"
)

// Configuration failures, reported once by New.
var (
	ErrEmptyRoster          = errors.New("roster has no authorized pullers")
	ErrNoRecoverer          = errors.New("signature recoverer is not configured")
	ErrNoDuplicationChecker = errors.New("duplication checker is not configured")
	ErrInvalidWeights       = errors.New("score weights must be non-negative and sum to 1")
	ErrInvalidThreshold     = errors.New("validity threshold must be within [0,1]")
	ErrEngineUsed           = errors.New("engine already generated a proof")
)

// RecoveryKind classifies why no signer came back from a recovery attempt.
type RecoveryKind string

const (
	RecoveryMalformedSignature RecoveryKind = "malformed_signature"
	RecoveryUnreachable        RecoveryKind = "verifier_unreachable"
	RecoveryRejected           RecoveryKind = "verifier_rejected"
	RecoveryMalformedResponse  RecoveryKind = "malformed_response"
	RecoveryCanceled           RecoveryKind = "canceled"
)

// RecoveryError is returned by every SignatureRecoverer failure. Scoring treats
// all kinds the same way; the kind exists for logs and tests.
type RecoveryError struct {
	Kind    RecoveryKind
	Message string
	Cause   error
}

func (e *RecoveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RecoveryError) Unwrap() error {
	return e.Cause
}

func newRecoveryError(kind RecoveryKind, message string, cause error) *RecoveryError {
	return &RecoveryError{Kind: kind, Message: message, Cause: cause}
}

// RecoveryKindOf extracts the kind from a recovery failure, "" if err is not one.
func RecoveryKindOf(err error) RecoveryKind {
	var re *RecoveryError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
