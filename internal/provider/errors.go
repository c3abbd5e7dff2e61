package provider

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrRefused     = errors.New("backend refused the request")
	ErrTextOnly    = errors.New("backend returned text instead of an image")
	ErrEmptyResult = errors.New("backend returned no image")
	ErrTransport   = errors.New("backend request failed")
)

const textExcerptLimit = 200

// BackendRefusalError is returned when the backend stops with a safety or
// policy reason instead of producing an image.
type BackendRefusalError struct {
	Reason  string
	Message string
}

func (e *BackendRefusalError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend refused the request (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("backend refused the request (%s)", e.Reason)
}

func (e *BackendRefusalError) Is(target error) bool { return target == ErrRefused }

// TextOnlyResponseError carries a bounded excerpt of the text the backend
// sent back in place of an image.
type TextOnlyResponseError struct {
	Excerpt string
}

func NewTextOnlyResponseError(text string) *TextOnlyResponseError {
	return &TextOnlyResponseError{Excerpt: Excerpt(text)}
}

func (e *TextOnlyResponseError) Error() string {
	return fmt.Sprintf("backend returned text instead of an image: %s", e.Excerpt)
}

func (e *TextOnlyResponseError) Is(target error) bool { return target == ErrTextOnly }

type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string { return "backend returned no image" }

func (e *EmptyResponseError) Is(target error) bool { return target == ErrEmptyResult }

// TransportError wraps a failure to reach the backend or read its reply.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Excerpt caps text at 200 characters, marking truncation with "...".
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= textExcerptLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:textExcerptLimit]) + "..."
}

// Describe renders err as the single user-facing message shown by drivers.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var refusal *BackendRefusalError
	var textOnly *TextOnlyResponseError
	var transport *TransportError

	switch {
	case errors.As(err, &refusal):
		return fmt.Sprintf("Generation was blocked (%s). Try a different image or instruction.", refusal.Reason)
	case errors.As(err, &textOnly):
		return fmt.Sprintf("The model answered with text instead of an image: %s", textOnly.Excerpt)
	case errors.Is(err, ErrEmptyResult):
		return "The model returned no image. Please try again."
	case errors.As(err, &transport):
		return fmt.Sprintf("Could not reach the image service: %v", transport.Err)
	default:
		return err.Error()
	}
}
