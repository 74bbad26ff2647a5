package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a usage or resource error detected by the engine.
//
// Errors returned by rule actions are never wrapped in a RuntimeError;
// they leave FireRules unchanged.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Rule identifies the rule involved, if any.
	Rule string

	// FactID identifies the fact involved, if any.
	FactID int64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAlreadyRunning: FireRules called during a run.
	ErrCodeAlreadyRunning RuntimeErrorCode = "ENGINE_RUNNING"

	// ErrCodeNotRunning: insert or update called while idle.
	ErrCodeNotRunning RuntimeErrorCode = "ENGINE_NOT_RUNNING"

	// ErrCodeMatching: insert or update called while conditions are
	// being evaluated.
	ErrCodeMatching RuntimeErrorCode = "ENGINE_MATCHING"

	// ErrCodeMissingArgument: a required argument was nil or empty.
	ErrCodeMissingArgument RuntimeErrorCode = "MISSING_ARGUMENT"

	// ErrCodeNotLinked: FireRules called before LinkRules.
	ErrCodeNotLinked RuntimeErrorCode = "NOT_LINKED"

	// ErrCodeAlreadyLinked: the network was changed after LinkRules.
	ErrCodeAlreadyLinked RuntimeErrorCode = "ALREADY_LINKED"

	// ErrCodeUnknownType: a fact or pattern names an undefined record type.
	ErrCodeUnknownType RuntimeErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidRule: a rule is malformed.
	ErrCodeInvalidRule RuntimeErrorCode = "INVALID_RULE"

	// ErrCodeDepthExceeded: nested inserts exceeded the depth bound.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeQuotaExceeded: a run fired more activations than allowed.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Rule != "" && e.FactID != 0:
		return fmt.Sprintf("%s: %s (rule=%s, fact=%d)", e.Code, e.Message, e.Rule, e.FactID)
	case e.Rule != "":
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.Rule)
	case e.FactID != 0:
		return fmt.Sprintf("%s: %s (fact=%d)", e.Code, e.Message, e.FactID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, codes ...RuntimeErrorCode) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsUsageError reports whether err is a phase or protocol violation.
// Uses errors.As to handle wrapped errors.
func IsUsageError(err error) bool {
	return hasCode(err,
		ErrCodeAlreadyRunning, ErrCodeNotRunning, ErrCodeMatching,
		ErrCodeMissingArgument, ErrCodeNotLinked, ErrCodeAlreadyLinked)
}

// IsDepthError reports whether err is a depth-bound failure.
func IsDepthError(err error) bool {
	var de *DepthExceededError
	return errors.As(err, &de) || hasCode(err, ErrCodeDepthExceeded)
}

// IsQuotaError reports whether err is an activation quota failure.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se) || hasCode(err, ErrCodeQuotaExceeded)
}

// IsResourceError reports whether err is any kind of resource exhaustion.
func IsResourceError(err error) bool {
	return IsDepthError(err) || IsQuotaError(err)
}

func errAlreadyRunning() error {
	return &RuntimeError{Code: ErrCodeAlreadyRunning, Message: "engine is already running"}
}

func errNotRunning() error {
	return &RuntimeError{Code: ErrCodeNotRunning, Message: "engine isn't running"}
}

func errMatching() error {
	return &RuntimeError{Code: ErrCodeMatching, Message: "engine is matching; facts can only change while a rule action runs"}
}

func errMissing(what string) error {
	return &RuntimeError{Code: ErrCodeMissingArgument, Message: fmt.Sprintf("required argument %s is missing", what)}
}

func errUnknownType(name string) error {
	return &RuntimeError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("unknown record type %q", name)}
}

func errInvalidRule(rule, msg string) error {
	return &RuntimeError{Code: ErrCodeInvalidRule, Message: msg, Rule: rule}
}
