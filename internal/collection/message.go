package collection

import (
	"context"
	"errors"
	"strings"

	"github.com/simp-lee/crmdesk/internal/domain"
)

const (
	msgFetchFailed  = "failed to load records"
	msgFetchTimeout = "loading records timed out"
)

// ErrorMessage extracts the operator-facing message from a fetch error.
// The Message of a *domain.AppError wins; anything else gets a generic text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		if msg := strings.TrimSpace(appErr.Message); msg != "" {
			return msg
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgFetchTimeout
	}
	return msgFetchFailed
}
