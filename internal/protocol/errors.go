package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse indicates the engine returned data that does not match
// the message schema for the method.
var ErrInvalidResponse = errors.New("invalid response from engine")

// RPCError is an error raised by the engine and carried over the transport.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeEngineError is used for errors raised by the engine implementation.
	CodeEngineError = -32000
)

// ValidationError describes why a payload failed boundary validation.
type ValidationError struct {
	Method string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Field, e.Reason)
}

// Unwrap makes every ValidationError match ErrInvalidResponse.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidResponse
}
