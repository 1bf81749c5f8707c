package pipeline

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindConfig
	KindNoResults
	KindRateLimited
	KindQuotaExhausted
	KindUpstream
	KindParse
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConfig:
		return "config"
	case KindNoResults:
		return "no_results"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindUpstream:
		return "upstream"
	case KindParse:
		return "parse"
	case KindPersistence:
		return "persistence"
	}
	return "internal"
}

// Status is the HTTP status a failure of this kind is reported with.
func (k Kind) Status() int {
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindNoResults:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindQuotaExhausted:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// Error is a tagged pipeline failure. Message is safe to show to callers;
// Err holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// User-facing messages.
const (
	MsgQueryRequired  = "Query required"
	MsgQueryTooLong   = "Query too long (max 500 characters)"
	MsgInvalidMode    = "Invalid mode (want solver or builder)"
	MsgNotConfigured  = "Service not configured"
	MsgNoDiscussions  = "No discussions found"
	MsgRateLimited    = "Rate limit exceeded. Please try again later."
	MsgQuotaExhausted = "AI credits exhausted. Please add credits to continue."
	MsgAIFailed       = "AI analysis failed"
	MsgParseFailed    = "Failed to parse AI response"
	MsgSaveFailed     = "Failed to save"
	MsgInternal       = "Internal error"
)

// Describe returns the kind and caller-safe message for any error. Errors
// that are not *Error are reported as internal.
func Describe(err error) (Kind, string) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, pe.Message
	}
	return KindInternal, MsgInternal
}
