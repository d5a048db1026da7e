package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the client
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication" // bad credentials, missing or unobtainable token
	KindNetwork        ErrorKind = "network"        // transport failure
	KindServer         ErrorKind = "server"         // non-2xx response
	KindProtocol       ErrorKind = "protocol"       // malformed token, body, or live message
	KindState          ErrorKind = "state"          // operation needs a logged-in user
)

// Error codes carried in AppError.Code
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidToken      = "INVALID_TOKEN"
	ErrCodeRefreshFailed     = "REFRESH_FAILED"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeHTTPStatus        = "HTTP_STATUS"
	ErrCodeDecode            = "DECODE_ERROR"
	ErrCodeInvalidAttachment = "INVALID_ATTACHMENT"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNoUser            = "NO_USER"
	ErrCodeWebSocketClose    = "WEBSOCKET_CLOSE"
)

// WebSocket close code the comment service uses to reject anonymous subscribers
const CloseUnauthorized = 4001

var (
	ErrNoAccessToken  = errors.New("no access token available")
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrNoUser         = errors.New("no user logged in")
	ErrAuthRequired   = errors.New("authentication required")
	ErrInvalidToken   = errors.New("invalid or malformed token")
	ErrNotConnected   = errors.New("live channel not connected")
)

// AppError is the typed failure returned by every client component
type AppError struct {
	Kind       ErrorKind `json:"kind"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAuthError
func NewAuthError(code, message string, err error) *AppError {
	return &AppError{Kind: KindAuthentication, Code: code, Message: message, Err: err}
}

// NewNetworkError
func NewNetworkError(message string, err error) *AppError {
	return &AppError{Kind: KindNetwork, Code: ErrCodeTransport, Message: message, Err: err}
}

// NewServerError
func NewServerError(statusCode int, message string) *AppError {
	return &AppError{Kind: KindServer, Code: ErrCodeHTTPStatus, Message: message, StatusCode: statusCode}
}

// NewProtocolError
func NewProtocolError(code, message string, err error) *AppError {
	return &AppError{Kind: KindProtocol, Code: code, Message: message, Err: err}
}

// NewStateError
func NewStateError(code, message string, err error) *AppError {
	return &AppError{Kind: KindState, Code: code, Message: message, Err: err}
}

// IsKind reports whether any AppError in err's chain has the given kind
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Message returns the human-readable part of err for display in lastError fields
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
