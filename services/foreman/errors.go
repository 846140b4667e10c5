package foreman

import (
	"errors"
	"fmt"
	"strings"
)

// ApplicationErrorPrefix marks Foreman error codes that arrive inside a 2xx response.
const ApplicationErrorPrefix = "ERF51"

// ApplicationError is a Foreman error embedded in an otherwise successful response.
type ApplicationError struct {
	Op      string
	Host    string
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Host, e.Message)
}

// IsApplicationError reports whether err wraps an ApplicationError.
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// embeddedError returns the Foreman error message carried in resp, if any. The code may
// start any line of the message.
func embeddedError(resp Response) (string, bool) {
	if msg, ok := resp["message"].(string); ok && hasErrorCode(msg) {
		return msg, true
	}
	if nested, ok := resp["error"].(map[string]any); ok {
		if msg, ok := nested["message"].(string); ok && hasErrorCode(msg) {
			return msg, true
		}
	}
	return "", false
}

func hasErrorCode(msg string) bool {
	for line := range strings.SplitSeq(msg, "\n") {
		if strings.HasPrefix(line, ApplicationErrorPrefix) {
			return true
		}
	}
	return false
}
