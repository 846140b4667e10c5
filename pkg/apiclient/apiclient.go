// Package apiclient holds the request plumbing shared by the PuppetDB and Foreman clients.
package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 2048

// RemoteError reports a transport failure, a non-2xx status, or a response body that could
// not be decoded.
type RemoteError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a RemoteError carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == status
}

// Do sends req and decodes the JSON response into dest. Numbers decoded into interface
// values are kept as json.Number so they re-encode exactly. A nil dest drains the body
// without decoding it.
func Do(client *http.Client, req *http.Request, dest any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &RemoteError{Method: req.Method, URL: redact(req), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{
			Method:     req.Method,
			URL:        redact(req),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if dest == nil {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return &RemoteError{Method: req.Method, URL: redact(req), StatusCode: resp.StatusCode, Err: fmt.Errorf("drain response body: %w", err)}
		}
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return &RemoteError{Method: req.Method, URL: redact(req), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// JoinURL appends path to base, collapsing the slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func redact(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.User = nil
	return u.String()
}
