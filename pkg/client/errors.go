package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrUnsupportedEncoding is returned for a Content-Encoding the client did not negotiate.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes,
	// before or after decompression. It is not retried.
	ErrBodyTooLarge = errors.New("response body too large")
)

// TransportError is returned when a GET could not produce a JSON document:
// network failures after the retry budget, non-retryable HTTP status codes,
// or context cancellation.
type TransportError struct {
	URL        string
	Attempts   int
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s error (status %d) for %s after %d attempt(s): %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transport %s error for %s after %d attempt(s): %v",
		e.ErrorClass, e.URL, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError is a structured error envelope returned by the feature service.
// It indicates a query problem and is never retried.
type ServiceError struct {
	URL         string
	Code        int
	Message     string
	Description string
	Details     []string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	text := e.Message
	if e.Description != "" {
		if text != "" {
			text += ": "
		}
		text += e.Description
	}
	if len(e.Details) > 0 {
		text += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return fmt.Sprintf("service error %d: %s", e.Code, text)
}

// serviceErrorFrom extracts the error envelope from a decoded response, if any.
func serviceErrorFrom(rawURL string, envelope map[string]any) *ServiceError {
	raw, ok := envelope["error"]
	if !ok || raw == nil {
		return nil
	}
	se := &ServiceError{URL: rawURL}
	obj, ok := raw.(map[string]any)
	if !ok {
		se.Message = fmt.Sprint(raw)
		return se
	}
	se.Code = intValue(obj["code"])
	se.Message, _ = obj["message"].(string)
	se.Description, _ = obj["description"].(string)
	if details, ok := obj["details"].([]any); ok {
		for _, d := range details {
			if s, ok := d.(string); ok && s != "" {
				se.Details = append(se.Details, s)
			}
		}
	}
	return se
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork, ErrorClassDecode:
		return true
	default:
		// 4xx query errors and cancellations fail immediately
		return false
	}
}
