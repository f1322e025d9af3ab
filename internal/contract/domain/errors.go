package domain

import (
	"errors"
	"fmt"
)

// FailureKind tags the pipeline stage a failure belongs to. Kinds drive
// metrics labels and let callers decide retry policy per class.
type FailureKind string

const (
	KindValidation          FailureKind = "validation"
	KindFetchEmail          FailureKind = "fetch_email"
	KindFetchMembership     FailureKind = "fetch_membership"
	KindFetchAttachment     FailureKind = "fetch_attachment"
	KindFetchAggregator     FailureKind = "fetch_aggregator"
	KindFetchDelegates      FailureKind = "fetch_delegates"
	KindFiscalCodeNotFound  FailureKind = "fiscal_code_not_found"
	KindUpsert              FailureKind = "upsert"
	KindSaveContract        FailureKind = "save_contract"
	KindProcessedMembership FailureKind = "processed_membership"
)

// StageError wraps a failure with the stage kind it occurred in. All
// pipeline errors surface as StageError so callers can classify without
// string matching.
type StageError struct {
	Kind FailureKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(kind FailureKind, err error) *StageError {
	return &StageError{Kind: kind, Err: err}
}

func Errorf(kind FailureKind, format string, args ...any) *StageError {
	return &StageError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from err, or empty when err is not a
// stage error.
func KindOf(err error) FailureKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
