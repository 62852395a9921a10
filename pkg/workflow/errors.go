package workflow

import (
	"errors"
	"fmt"
)

// Kind identifies an error category at the core boundary, independent of
// its underlying cause. Callers should use errors.As to recover a *Error
// and switch on Kind rather than comparing error strings.
type Kind string

const (
	KindUnknownWorkflow   Kind = "UnknownWorkflow"
	KindUnknownToken      Kind = "UnknownToken"
	KindUnknownTransition Kind = "UnknownTransition"
	KindInvalidTransition Kind = "InvalidTransition"
	KindRuleDenied        Kind = "RuleDenied"
	KindStale             Kind = "Stale"
	KindStoreError        Kind = "StoreError"
	KindAgentFailure      Kind = "AgentFailure"
	KindFunctionFailure   Kind = "FunctionFailure"
	KindTimeout           Kind = "Timeout"
	KindMappingError      Kind = "MappingError"
	KindOrphanEvent       Kind = "OrphanEvent"
	KindDuplicate         Kind = "Duplicate"
	KindFilterDrop        Kind = "FilterDrop"
	KindOverloaded        Kind = "Overloaded"
	KindChannelClosed     Kind = "ChannelClosed"
	KindUnknownRule       Kind = "UnknownRule"
	KindRuleEvaluationErr Kind = "RuleEvaluationError"
)

// retryable marks which kinds the propagation policy treats as retryable by
// default. StoreError defaults retryable; callers may override per call site
// (e.g. a permanent StoreError from a malformed payload).
var retryable = map[Kind]bool{
	KindStale:           true,
	KindStoreError:      true,
	KindAgentFailure:    true,
	KindFunctionFailure: true,
	KindTimeout:         true,
}

// Error is the tagged-union error type returned at every core boundary.
type Error struct {
	Kind    Kind
	Message string
	// FailingRules carries the rule identifiers that denied a transition,
	// populated only when Kind == KindRuleDenied.
	FailingRules []string
	Retryable    bool
	Err          error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Error of the given kind wrapping err, with the kind's default
// retry policy.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err, Retryable: retryable[kind]}
}

// RuleDenied builds the *Error carrying the failing rule identifiers.
func RuleDenied(failing []string) *Error {
	return &Error{Kind: KindRuleDenied, Message: "rule tree denied transition", FailingRules: failing}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
