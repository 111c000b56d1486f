package gitlab

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// contentKind tags how a response body should be interpreted. The kind
// is decided purely from the Content-Type header, never by inspecting
// the body itself.
type contentKind int

const (
	contentJSON contentKind = iota
	contentText
	contentBinary
)

// classifyContent maps a Content-Type header value to a contentKind.
// Charset and other parameters are ignored.
func classifyContent(contentType string) contentKind {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])

	switch {
	case mediaType == "application/json":
		return contentJSON
	case strings.HasPrefix(mediaType, "text/"):
		return contentText
	default:
		return contentBinary
	}
}

// failedRequestError reads a non-retryable error response and distils
// it into a RequestFailedError. JSON error bodies contribute their
// error/message field; anything else is used as raw text.
func failedRequestError(resp *http.Response) *RequestFailedError {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		body = nil
	}

	return &RequestFailedError{
		Status:      resp.StatusCode,
		Description: errorDescription(resp.Header.Get("Content-Type"), body),
	}
}

func errorDescription(contentType string, body []byte) string {
	if classifyContent(contentType) != contentJSON {
		return strings.TrimSpace(string(body))
	}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	field := payload.Error
	if len(field) == 0 {
		field = payload.Message
	}
	if len(field) == 0 {
		return ""
	}

	// Plain string fields are unquoted; structured ones (GitLab
	// validation errors are maps of lists) are kept as JSON.
	var s string
	if err := json.Unmarshal(field, &s); err == nil {
		return s
	}

	return string(field)
}
