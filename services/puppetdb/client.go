package puppetdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"factsync/pkg/apiclient"
	"factsync/pkg/telemetry"
	"factsync/services/inventory"
)

// Client reads node inventories and facts from the PuppetDB v3 query API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// node is one entry of GET /v3/nodes.
type node struct {
	Name *string `json:"name"`
}

// fact is one entry of GET /v3/nodes/{host}/facts.
type fact struct {
	Name  *string `json:"name"`
	Value any     `json:"value"`
}

// NewClient constructs a Client for the PuppetDB instance at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("puppetdb url is required")
	}
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	if logger == nil {
		logger = telemetry.NewLogger("puppetdb", nil)
	}
	return &Client{baseURL: baseURL, http: httpClient, logger: logger}, nil
}

// ListHosts returns the names of every node PuppetDB knows about.
func (c *Client) ListHosts(ctx context.Context) (inventory.HostSet, error) {
	var nodes []node
	if err := c.get(ctx, "/v3/nodes", &nodes); err != nil {
		return nil, fmt.Errorf("list puppetdb nodes: %w", err)
	}

	hosts := make(inventory.HostSet, len(nodes))
	for i, n := range nodes {
		if n.Name == nil || *n.Name == "" {
			return nil, fmt.Errorf("list puppetdb nodes: entry %d has no name", i)
		}
		hosts.Add(*n.Name)
	}
	return hosts, nil
}

// GetFacts returns the fact list for host. A host PuppetDB has no facts for is logged and
// yields an empty list rather than an error.
func (c *Client) GetFacts(ctx context.Context, host string) ([]inventory.Fact, error) {
	if host == "" {
		return nil, errors.New("host is required")
	}

	var raw []fact
	if err := c.get(ctx, "/v3/nodes/"+url.PathEscape(host)+"/facts", &raw); err != nil {
		return nil, fmt.Errorf("get facts for %s: %w", host, err)
	}

	if len(raw) == 0 {
		c.logger.Printf("WARN host %s not found in puppetdb", host)
		return []inventory.Fact{}, nil
	}

	facts := make([]inventory.Fact, 0, len(raw))
	for i, f := range raw {
		if f.Name == nil {
			return nil, fmt.Errorf("get facts for %s: entry %d has no name", host, i)
		}
		facts = append(facts, inventory.Fact{Name: *f.Name, Value: f.Value})
	}
	return facts, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiclient.JoinURL(c.baseURL, path), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return apiclient.Do(c.http, req, dest)
}
