package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Connection errors
var (
	ErrPrematureTermination = errors.New("gateway connection ended before the session became ready")
	ErrUnexpectedState      = errors.New("connection did not become ready")
	ErrInvalidCredential    = errors.New("invalid token")
	ErrNoServersAvailable   = errors.New("no servers available")
	ErrConnectionInternal   = errors.New("internal connection error")
)

// Errors returned while fetching and rendering channels
var (
	ErrAccessDenied     = errors.New("access denied")
	ErrTemplateNotFound = errors.New("template not found")
	ErrRenderInternal   = errors.New("html generation failed")
)

// Configuration errors
var (
	ErrThemesMissing = errors.New("themes directory not found")
	ErrNoThemes      = errors.New("no themes found")
	ErrAborted       = errors.New("aborted by operator")
)

// ConnectError is returned by Coordinator.Connect. Reason is one of the
// connection sentinel errors, Err the underlying cause if there is one.
type ConnectError struct {
	Reason error
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// RenderError is returned by Renderer.Render
type RenderError struct {
	Theme  string
	Reason error
	Err    error
}

func (e *RenderError) Error() string {
	if errors.Is(e.Reason, ErrTemplateNotFound) {
		return fmt.Sprintf("template %q not found in %s", templateName, e.Theme)
	}
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

func (e *RenderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// APIError represents a non-2xx response from the Discord REST API
type APIError struct {
	StatusCode int
	URL        string
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d for %s: %s (code %d)", e.StatusCode, e.URL, e.Message, e.Code)
	}
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Is lets callers match API errors with errors.Is(err, ErrAccessDenied)
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAccessDenied:
		return e.StatusCode == http.StatusForbidden
	case ErrInvalidCredential:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// panicError carries a recovered panic and the stack it happened on
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
