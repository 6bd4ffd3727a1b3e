package assistant

import (
	"context"
	"errors"
)

// TextGenerator generates text from a system prompt and user prompt. All
// providers implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider failures are mapped onto these categories so handlers can pick the
// right status code. Generation is never retried on error, a failed request
// is surfaced to the user as-is.
var (
	ErrAuthFailed    = errors.New("generation provider rejected credentials")
	ErrQuotaExceeded = errors.New("generation provider quota exceeded")
	ErrGeneration    = errors.New("generation failed")
)

// ErrorOutcome labels a generation error for logging and metrics.
func ErrorOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthFailed):
		return "auth"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}
