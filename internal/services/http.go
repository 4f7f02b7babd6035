package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 64 * 1024

// TransportError tags a failed HTTP round trip as a retryable network error.
func TransportError(stage, operation string, err error) error {
	return Wrap(ErrNetwork, stage, operation, "request failed", err)
}

// CheckResponse reads the response body and classifies non-2xx statuses.
// 408, 429, and 5xx are tagged ErrNetwork; every other failure becomes an
// *APIError. The body is returned for successful responses.
func CheckResponse(service, stage, operation string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(ErrNetwork, stage, operation, "read response body", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	message := APIErrorMessage(resp.StatusCode, body)
	if TransientStatus(resp.StatusCode) {
		return nil, Wrap(ErrNetwork, stage, operation, fmt.Sprintf("[HTTP %d] %s", resp.StatusCode, message), nil)
	}
	return nil, &APIError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Message:    operation + ": " + message,
	}
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// APIErrorMessage extracts a human-readable message from an error response.
// JSON bodies with error, message, or detail fields are preferred; common
// statuses fall back to a hint for the operator.
func APIErrorMessage(code int, body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	if msg := jsonErrorMessage(body); msg != "" {
		return msg
	}
	switch code {
	case http.StatusUnauthorized:
		return "Unauthorized. Check the configured API key."
	case http.StatusForbidden:
		return "Access denied."
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Please try again later."
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return summarize(text)
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", code)
}

func jsonErrorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "message", "detail"} {
		if msg := stringField(payload[key]); msg != "" {
			return msg
		}
	}
	return ""
}

func stringField(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v["message"])
	case []any:
		if len(v) > 0 {
			if entry, ok := v[0].(map[string]any); ok {
				return stringField(entry["msg"])
			}
			return stringField(v[0])
		}
	}
	return ""
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const limit = 300
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
