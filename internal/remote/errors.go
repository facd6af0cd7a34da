package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Remote status codes the engine branches on. Everything else is treated
// as a generic API failure.
const (
	codeOK          = 1
	codeBlockedChat = 20
)

// APIError is a non-OK status returned by the remote service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api error %d: %s", e.Code, e.Message)
}

// IsBlockedChat reports whether err is the remote's "chat blocked" response.
// Callers persist this as chat state instead of failing.
func IsBlockedChat(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeBlockedChat
}

// uploadTranslations maps known server error phrases to user-facing text.
var uploadTranslations = map[string]string{
	"file too large":        "The file is too large to send.",
	"unsupported file type": "This file type cannot be sent.",
	"quota exceeded":        "Upload limit reached, try again later.",
}

// TranslateUploadError rewrites a known upload failure into friendly text,
// or wraps the original error with a generic prefix.
func TranslateUploadError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		for pattern, text := range uploadTranslations {
			if strings.Contains(strings.ToLower(apiErr.Message), pattern) {
				return errors.New(text)
			}
		}
	}
	return fmt.Errorf("upload failed: %w", err)
}
