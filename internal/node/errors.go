package node

import (
	"errors"
	"fmt"
)

// ComputeErrorCode categorizes compute failures.
type ComputeErrorCode string

const (
	// ErrCodeInvalidBufferCount means an input slot had no buffer to read.
	ErrCodeInvalidBufferCount ComputeErrorCode = "INVALID_BUFFER_COUNT"

	// ErrCodeInvalidBufferSize means the working size could not be determined.
	ErrCodeInvalidBufferSize ComputeErrorCode = "INVALID_BUFFER_SIZE"

	// ErrCodeInvalidChannels means an input carried the wrong pixel format.
	ErrCodeInvalidChannels ComputeErrorCode = "INVALID_CHANNELS"

	// ErrCodeMissingImage means an image node has no decoded pixels.
	ErrCodeMissingImage ComputeErrorCode = "MISSING_IMAGE"

	// ErrCodePanic means the compute function panicked.
	ErrCodePanic ComputeErrorCode = "PANIC"

	// ErrCodeUpstreamFailed means a producer of this node failed.
	ErrCodeUpstreamFailed ComputeErrorCode = "UPSTREAM_FAILED"
)

// ComputeError is the asynchronous failure of one node's computation. It is
// recorded on the node and never propagated as a Go error past the scheduler.
type ComputeError struct {
	Code    ComputeErrorCode
	Message string
	Node    ID

	// Upstream is the failing producer for ErrCodeUpstreamFailed.
	Upstream ID

	Err error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Node != 0 {
		msg = fmt.Sprintf("%s (node=%d)", msg, e.Node)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ComputeError) Unwrap() error { return e.Err }

func computeErrorf(code ComputeErrorCode, format string, args ...any) *ComputeError {
	return &ComputeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewPanicError wraps a recovered panic value.
func NewPanicError(id ID, recovered any) *ComputeError {
	return &ComputeError{
		Code:    ErrCodePanic,
		Message: fmt.Sprintf("compute panicked: %v", recovered),
		Node:    id,
	}
}

// NewUpstreamError records that id could not run because upstream failed.
func NewUpstreamError(id, upstream ID) *ComputeError {
	return &ComputeError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("producer %d failed", upstream),
		Node:     id,
		Upstream: upstream,
	}
}

// IsComputeError reports whether err wraps a ComputeError.
func IsComputeError(err error) bool {
	var ce *ComputeError
	return errors.As(err, &ce)
}

// ErrorCode returns the ComputeErrorCode carried by err, or "".
func ErrorCode(err error) ComputeErrorCode {
	var ce *ComputeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInvalidBufferCount reports whether err is an INVALID_BUFFER_COUNT failure.
func IsInvalidBufferCount(err error) bool {
	return ErrorCode(err) == ErrCodeInvalidBufferCount
}
