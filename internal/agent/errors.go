package agent

import (
	"errors"
	"fmt"
)

// Kind classifies why a question could not be answered.
type Kind string

const (
	KindMissingOwner      Kind = "MissingOwner"
	KindInvalidQuestion   Kind = "InvalidQuestion"
	KindSchemaUnavailable Kind = "SchemaUnavailable"
	KindGenerationFailed  Kind = "GenerationFailed"
	// KindQueryRejected is a generation failure where the model produced a
	// statement the validator refused.
	KindQueryRejected   Kind = "QueryRejected"
	KindExecutionFailed Kind = "ExecutionFailed"
	KindSynthesisFailed Kind = "SynthesisFailed"
	KindCanceled        Kind = "Canceled"
)

// Error is the failure carried in AgentResponse.Err.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an *Error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
