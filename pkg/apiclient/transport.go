package apiclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"factsync/pkg/telemetry"
)

// TLSFiles locates the CA bundle and client key pair presented to both services.
type TLSFiles struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// Options configures the HTTP client shared by the PuppetDB and Foreman clients.
type Options struct {
	Timeout time.Duration
	// ClientCerts, when set, adds the CA pool and client certificate to every request.
	ClientCerts *TLSFiles
	// Verify enables peer and host name verification. It is off unless explicitly enabled.
	Verify bool
}

// NewHTTPClient builds an instrumented *http.Client from opts.
func NewHTTPClient(opts Options) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !opts.Verify, //nolint:gosec // controlled by tls.verify
	}

	if opts.ClientCerts != nil {
		caPEM, err := os.ReadFile(opts.ClientCerts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates found in %s", opts.ClientCerts.CAFile)
		}
		tlsConfig.RootCAs = pool

		pair, err := tls.LoadX509KeyPair(opts.ClientCerts.CertFile, opts.ClientCerts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: telemetry.Transport(transport),
	}, nil
}
