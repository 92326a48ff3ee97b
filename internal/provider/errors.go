package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Error codes the OpenAI-compatible API reports in error.code or error.type.
const (
	codeInvalidAPIKey     = "invalid_api_key"
	codeInsufficientQuota = "insufficient_quota"
)

// maxErrorDetail caps how much of a non-JSON error body is kept.
const maxErrorDetail = 300

// EndpointError is a chat completion request the model endpoint answered
// with a non-2xx status.
type EndpointError struct {
	Endpoint   string // "primary" or "fallback"
	StatusCode int
	Code       string // error.code, or error.type when code is absent
	Message    string
}

func (e *EndpointError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s model endpoint returned HTTP %d", e.Endpoint, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// IsAuth reports a rejected or missing API key.
func (e *EndpointError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Code == codeInvalidAPIKey
}

// IsRateLimit reports HTTP 429, which covers both throttling and an
// exhausted billing quota.
func (e *EndpointError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsQuotaExhausted reports a 429 that will not clear by waiting.
func (e *EndpointError) IsQuotaExhausted() bool {
	return e.IsRateLimit() && e.Code == codeInsufficientQuota
}

// IsServerError reports a 5xx from the endpoint or a proxy in front of it.
func (e *EndpointError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsTransient reports whether the same request may succeed later.
func (e *EndpointError) IsTransient() bool {
	return e.IsServerError() || (e.IsRateLimit() && !e.IsQuotaExhausted())
}

// errorFromBody decodes a raw error response. Self-hosted servers and
// proxies often answer with plain text, so anything that is not the
// {"error":{...}} envelope keeps its first line as the message.
func errorFromBody(endpoint string, status int, body []byte) *EndpointError {
	ee := &EndpointError{Endpoint: endpoint, StatusCode: status}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		ee.Message = envelope.Error.Message
		ee.Code = errorCode(envelope.Error.Code, envelope.Error.Type)
		return ee
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	if len(line) > maxErrorDetail {
		line = line[:maxErrorDetail] + "..."
	}
	ee.Message = strings.TrimSpace(line)
	return ee
}

// errorCode picks error.code when it is a non-empty string and error.type
// otherwise. Some servers send a numeric code that repeats the HTTP status.
func errorCode(code any, typ string) string {
	if s, ok := code.(string); ok && s != "" {
		return s
	}
	return typ
}

// fromOpenAIError maps go-openai client errors that carry an HTTP status
// onto *EndpointError. Transport failures stay wrapped.
func fromOpenAIError(endpoint string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &EndpointError{
			Endpoint:   endpoint,
			StatusCode: apiErr.HTTPStatusCode,
			Code:       errorCode(apiErr.Code, apiErr.Type),
			Message:    apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return errorFromBody(endpoint, reqErr.HTTPStatusCode, reqErr.Body)
	}
	return fmt.Errorf("%s model endpoint: %w", endpoint, err)
}
