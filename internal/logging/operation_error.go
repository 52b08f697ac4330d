package logging

import (
	"fmt"
	"strings"
)

// OperationError annotates an error with the operation and the request or
// record it was working on.
type OperationError struct {
	Operation string
	RequestID string
	UserID    string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var ids []string
	if e.RequestID != "" {
		ids = append(ids, "request_id="+e.RequestID)
	}
	if e.UserID != "" {
		ids = append(ids, "user_id="+e.UserID)
	}
	if len(ids) > 0 {
		return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(ids, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation that produced it. A nil err
// yields a nil error.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// NewUserOperationError is NewOperationError for calls scoped to a user.
func NewUserOperationError(operation, requestID, userID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, UserID: userID, Err: err}
}
