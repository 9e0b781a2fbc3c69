package core

// These errors are document-author errors or handler failures, not
// internal errors.

import "fmt"

// UnknownAction occurs when an action's kind has no registered
// handler.
type UnknownAction struct {
	Kind string
}

func (e *UnknownAction) Error() string {
	return `no handler for action "` + e.Kind + `"`
}

// BadAction occurs when an action map can't be normalized: no kind,
// or an ambiguous shorthand with more than one candidate key.
type BadAction struct {
	Reason string
}

func (e *BadAction) Error() string {
	return "bad action: " + e.Reason
}

// ActionExecutionError wraps whatever went wrong while running one
// action: a handler error, a handler panic, or a validation rejection.
// The message carries the original cause.
type ActionExecutionError struct {
	Kind string
	Err  error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed: %s", e.Kind, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// FlowAbortedError means the cancellation signal or an abort flag was
// observed before or during execution.  It marks results as aborted;
// it does not indicate a handler failure.
type FlowAbortedError struct {
	Flow string
}

func (e *FlowAbortedError) Error() string {
	if e.Flow == "" {
		return "aborted"
	}
	return `flow "` + e.Flow + `" aborted`
}

// ConditionError occurs when a "when" condition can't be evaluated,
// including the classic authoring mistake of wrapping the condition
// in "${...}" interpolation syntax.
type ConditionError struct {
	Cond   string
	Reason string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("bad condition %q: %s", e.Cond, e.Reason)
}

// LimitError occurs when a call exceeds a configured ceiling.  Unlike
// runtime action failures, the executor raises these synchronously.
type LimitError struct {
	What string
	N    int
	Max  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%d %s exceeds the limit of %d", e.N, e.What, e.Max)
}
