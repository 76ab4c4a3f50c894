// Package mcp exposes the hybrid search orchestrator over the Model
// Context Protocol.
package mcp

import (
	"errors"
	"fmt"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// JSON-RPC error codes used by the server.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	// ErrCodeBackendsDown indicates every retrieval backend failed.
	ErrCodeBackendsDown = -32001

	// ErrCodeTimeout indicates the search deadline expired.
	ErrCodeTimeout = -32002
)

// ProtocolError is a JSON-RPC level error with code and message.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters protocol error.
func NewInvalidParamsError(message string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts internal errors to protocol errors.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var ve *vanaerrors.Error
	if errors.As(err, &ve) {
		switch ve.Code {
		case vanaerrors.ErrCodeQueryEmpty, vanaerrors.ErrCodeInvalidInput:
			return &ProtocolError{Code: ErrCodeInvalidParams, Message: ve.Message}
		case vanaerrors.ErrCodeAllBackendsDown:
			return &ProtocolError{Code: ErrCodeBackendsDown, Message: ve.Message}
		case vanaerrors.ErrCodeBackendTimeout:
			return &ProtocolError{Code: ErrCodeTimeout, Message: ve.Message}
		}
	}
	return &ProtocolError{Code: ErrCodeInternalError, Message: err.Error()}
}
