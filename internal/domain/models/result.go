package models

import "errors"

// Outcome tags a provider result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeDegraded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// Result carries a provider payload as Ok(value), Degraded(value, warnings) or Failed(err).
type Result[T any] struct {
	Outcome  Outcome
	Value    T
	Warnings []string
	Err      error
}

func OK[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeOK, Value: v}
}

// Degraded returns Ok when there are no warnings.
func Degraded[T any](v T, warnings []string) Result[T] {
	if len(warnings) == 0 {
		return OK(v)
	}
	return Result[T]{Outcome: OutcomeDegraded, Value: v, Warnings: warnings}
}

func Failed[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result[T]{Outcome: OutcomeFailed, Err: err}
}

// Usable reports whether the value can be consumed.
func (r Result[T]) Usable() bool { return r.Outcome != OutcomeFailed }

// Reason returns the failure message, or "" for usable results.
func (r Result[T]) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
