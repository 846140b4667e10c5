package foreman

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"factsync/pkg/apiclient"
	"factsync/services/inventory"
)

const (
	// DefaultPerPage is large enough that one page covers any realistic fleet.
	DefaultPerPage = 10000

	acceptV2 = "application/json,version=2"
)

// Response is the decoded JSON body Foreman returns for a write call.
type Response map[string]any

// Credentials authenticate every Foreman request with HTTP Basic auth.
type Credentials struct {
	Username string
	Password string
}

// Client talks to the Foreman hosts API.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

type hostEntry struct {
	Host *struct {
		Name *string `json:"name"`
	} `json:"host"`
}

type unmanageRequest struct {
	Host    struct{} `json:"host"`
	Managed bool     `json:"managed"`
}

// NewClient constructs a Client for the Foreman instance at baseURL.
func NewClient(baseURL string, creds Credentials, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("foreman url is required")
	}
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	return &Client{baseURL: baseURL, creds: creds, http: httpClient}, nil
}

// ListHosts returns the names of the hosts on the first page of size perPage. A perPage of
// zero or less uses DefaultPerPage.
func (c *Client) ListHosts(ctx context.Context, perPage int) (inventory.HostSet, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	query := url.Values{"per_page": []string{strconv.Itoa(perPage)}}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/hosts?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var entries []hostEntry
	if err := apiclient.Do(c.http, req, &entries); err != nil {
		return nil, fmt.Errorf("list foreman hosts: %w", err)
	}

	hosts := make(inventory.HostSet, len(entries))
	for i, entry := range entries {
		if entry.Host == nil || entry.Host.Name == nil || *entry.Host.Name == "" {
			return nil, fmt.Errorf("list foreman hosts: entry %d has no host.name", i)
		}
		hosts.Add(*entry.Host.Name)
	}
	return hosts, nil
}

// UploadFacts pushes doc to Foreman's fact import endpoint.
func (c *Client) UploadFacts(ctx context.Context, doc inventory.Document) (Response, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal facts for %s: %w", doc.Name, err)
	}
	return c.write(ctx, "upload facts", doc.Name, http.MethodPost, "/api/hosts/facts", body)
}

// DeleteHost removes host from Foreman. The response body is not inspected; only transport
// failures and non-2xx statuses are reported.
func (c *Client) DeleteHost(ctx context.Context, host string) error {
	if host == "" {
		return errors.New("host is required")
	}
	req, err := c.newRequest(ctx, http.MethodDelete, hostPath(host), nil)
	if err != nil {
		return err
	}
	if err := apiclient.Do(c.http, req, nil); err != nil {
		return fmt.Errorf("delete host %s: %w", host, err)
	}
	return nil
}

// UnmanageHost flags host as unmanaged so Foreman stops acting on its lifecycle.
func (c *Client) UnmanageHost(ctx context.Context, host string) (Response, error) {
	if host == "" {
		return nil, errors.New("host is required")
	}
	body, err := json.Marshal(unmanageRequest{Managed: false})
	if err != nil {
		return nil, err
	}
	return c.write(ctx, "unmanage host", host, http.MethodPost, hostPath(host), body)
}

func (c *Client) write(ctx context.Context, op, host, method, path string, body []byte) (Response, error) {
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptV2)
	req.Header.Set("Content-Type", "application/json")

	var resp Response
	if err := apiclient.Do(c.http, req, &resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, host, err)
	}
	if msg, ok := embeddedError(resp); ok {
		return resp, &ApplicationError{Op: op, Host: host, Message: msg}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiclient.JoinURL(c.baseURL, path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	return req, nil
}

func hostPath(host string) string {
	return "/api/hosts/" + url.PathEscape(host)
}
