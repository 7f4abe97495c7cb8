package types

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes provider errors
type ErrorCode string

const (
	ErrCodeUnknown ErrorCode = "unknown"
	// ErrCodeNotFound means the path is absent upstream. It is terminal: no other
	// provider can serve a file that does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeUnavailable is a non-2xx response other than 400.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeTransport is a network failure that survived the local retries.
	ErrCodeTransport ErrorCode = "transport"
	// ErrCodeDecode is a malformed upstream body.
	ErrCodeDecode ErrorCode = "decode"
	// ErrCodeAuthentication is a failed token exchange.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeExhausted means every candidate was paused or failed non-terminally.
	ErrCodeExhausted ErrorCode = "exhausted"
)

var (
	// ErrServiceUnavailable is returned when no candidate could even be attempted.
	ErrServiceUnavailable = errors.New("service unavailable: no provider available")
	// ErrRootUnresolved is returned by Initialize when the storage root id lookup never succeeded.
	ErrRootUnresolved = errors.New("drive root id could not be resolved")
	// ErrUnknownProvider is returned for provider ids outside the fleet.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ProviderError represents a standardized error from a provider
type ProviderError struct {
	Code        ErrorCode // Categorized error code
	Message     string    // Internal diagnostic, never shown to end users
	StatusCode  int       // HTTP status code (0 if not applicable)
	Provider    string    // Which provider generated this error
	Operation   string    // What operation failed (e.g., "download_url", "refresh_token")
	OriginalErr error     // Wrapped original error
	RequestID   string    // client-request-id sent upstream, if any
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s (status=%d, code=%s)", e.Provider, e.Message, e.StatusCode, e.Code)
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s (code=%s): %v", e.Provider, e.Message, e.Code, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s (code=%s)", e.Provider, e.Message, e.Code)
}

// Unwrap returns the original error for errors.Is/As
func (e *ProviderError) Unwrap() error {
	return e.OriginalErr
}

// IsTerminal reports whether failover must stop at this error.
func (e *ProviderError) IsTerminal() bool {
	return e.Code == ErrCodeNotFound
}

// WithOperation sets the operation field and returns the error for chaining
func (e *ProviderError) WithOperation(operation string) *ProviderError {
	e.Operation = operation
	return e
}

// WithStatusCode sets the status code field and returns the error for chaining
func (e *ProviderError) WithStatusCode(statusCode int) *ProviderError {
	e.StatusCode = statusCode
	return e
}

// WithOriginalErr sets the original error field and returns the error for chaining
func (e *ProviderError) WithOriginalErr(err error) *ProviderError {
	e.OriginalErr = err
	return e
}

// WithRequestID sets the request ID field and returns the error for chaining
func (e *ProviderError) WithRequestID(requestID string) *ProviderError {
	e.RequestID = requestID
	return e
}

// NewProviderError creates a new ProviderError
func NewProviderError(provider string, code ErrorCode, message string) *ProviderError {
	return &ProviderError{
		Code:     code,
		Message:  message,
		Provider: provider,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(provider string, message string) *ProviderError {
	return NewProviderError(provider, ErrCodeNotFound, message).WithStatusCode(400)
}

// NewUnavailableError creates an error for a non-success upstream status
func NewUnavailableError(provider string, statusCode int, message string) *ProviderError {
	return NewProviderError(provider, ErrCodeUnavailable, message).WithStatusCode(statusCode)
}

// NewTransportError creates a network error
func NewTransportError(provider string, err error) *ProviderError {
	return NewProviderError(provider, ErrCodeTransport, "request failed").WithOriginalErr(err)
}

// NewDecodeError creates an error for a body that could not be parsed
func NewDecodeError(provider string, err error) *ProviderError {
	return NewProviderError(provider, ErrCodeDecode, "failed to decode response").WithOriginalErr(err)
}

// NewExhaustedError wraps the last non-terminal failure once every candidate was tried
func NewExhaustedError(attempted int, last error) *ProviderError {
	return NewProviderError("pool", ErrCodeExhausted,
		fmt.Sprintf("all %d attempted providers failed", attempted)).WithOriginalErr(last)
}

// ClassifyHTTPError determines error code from a non-2xx HTTP status.
// Graph answers 400 for a path that does not exist under the drive root.
func ClassifyHTTPError(statusCode int) ErrorCode {
	if statusCode == 400 {
		return ErrCodeNotFound
	}
	return ErrCodeUnavailable
}

// CodeOf extracts the ErrorCode from an error chain, ErrCodeUnknown if none.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeUnknown
}

// IsNotFound reports whether err carries ErrCodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsUnavailable reports whether err means "pause this provider and move on"
// or the pool ran out of candidates.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	switch CodeOf(err) {
	case ErrCodeUnavailable, ErrCodeTransport, ErrCodeDecode, ErrCodeExhausted, ErrCodeAuthentication:
		return true
	}
	return false
}
