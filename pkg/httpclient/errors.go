package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
)

// ParseResponseError reads a non-2xx response and translates it into an
// AppError. It understands the envelope of this service
// ({"error":{"code","message"}}) as well as the flat error bodies of the
// hosted backend ({"message","error","code","statusCode"}). The body is
// consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := extractError(body)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func extractError(body []byte) (code, message string) {
	if !gjson.ValidBytes(body) {
		return "", ""
	}
	res := gjson.ParseBytes(body)
	if nested := res.Get("error"); nested.IsObject() {
		return nested.Get("code").String(), nested.Get("message").String()
	}
	code = res.Get("code").String()
	if code == "" {
		code = res.Get("error").String()
	}
	message = res.Get("message").String()
	if message == "" {
		message = res.Get("msg").String()
	}
	return code, message
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusTooManyRequests:
		return apperrors.TooManyRequests(qualified)
	case status >= 500:
		return &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: qualified,
			Status:  http.StatusServiceUnavailable,
			Err:     fmt.Errorf("%w: status %d code %s", apperrors.ErrServiceUnavail, status, code),
		}
	default:
		if code == "" {
			code = "DOWNSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: strings.ToUpper(code), Message: qualified, Status: status}
	}
}
