package crm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/simp-lee/crmdesk/internal/domain"
)

const (
	msgUnavailable = "crm unavailable"
	maxErrorBody   = 4 << 10
	reasonHeader   = "X-Status-Reason"
)

// statusError converts a non-2xx CRM response into an *domain.AppError.
// The message is taken from the JSON body, then the status reason header,
// then a generic text for the status class.
func statusError(resp *http.Response) *domain.AppError {
	code, fallback := classify(resp.StatusCode)

	msg := bodyMessage(resp.Body)
	if msg == "" {
		msg = strings.TrimSpace(resp.Header.Get(reasonHeader))
	}
	if msg == "" {
		msg = fallback
	}
	return domain.NewAppError(code, msg, fmt.Errorf("crm status %d", resp.StatusCode))
}

func classify(status int) (int, string) {
	switch {
	case status == http.StatusBadRequest:
		return domain.CodeValidation, "the crm rejected the request"
	case status == http.StatusUnauthorized:
		return domain.CodeUnauthorized, "crm credentials were rejected"
	case status == http.StatusForbidden:
		return domain.CodeForbidden, "access denied by the crm"
	case status == http.StatusNotFound:
		return domain.CodeNotFound, "record not found"
	case status == http.StatusConflict:
		return domain.CodeAlreadyExists, "record already exists"
	case status >= 500:
		return domain.CodeUpstream, msgUnavailable
	default:
		return domain.CodeUpstream, fmt.Sprintf("unexpected crm status %d", status)
	}
}

func bodyMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Message)
}
