package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factsync/services/foreman"
)

type stubServices struct {
	puppetdb *httptest.Server
	foreman  *httptest.Server

	mu      sync.Mutex
	uploads []string
}

func newStubServices(t *testing.T) *stubServices {
	t.Helper()
	s := &stubServices{}

	pdb := http.NewServeMux()
	pdb.HandleFunc("/v3/nodes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"name":"h1"}]`)
	})
	pdb.HandleFunc("/v3/nodes/h1/facts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"certname":"h1","name":"os","value":"linux"}]`)
	})
	pdb.HandleFunc("/v3/nodes/ghost/facts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	s.puppetdb = httptest.NewServer(pdb)
	t.Cleanup(s.puppetdb.Close)

	frm := http.NewServeMux()
	frm.HandleFunc("/api/hosts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"host":{"name":"h1"}},{"host":{"name":"old"}}]`)
	})
	frm.HandleFunc("/api/hosts/facts", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.uploads = append(s.uploads, string(body))
		s.mu.Unlock()
		if strings.Contains(string(body), `"name":"ghost"`) {
			_, _ = io.WriteString(w, `{"message":"ERF51-4785: host ghost is unknown"}`)
			return
		}
		_, _ = io.WriteString(w, `{"name":"h1","id":1}`)
	})
	frm.HandleFunc("/api/hosts/old", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	s.foreman = httptest.NewServer(frm)
	t.Cleanup(s.foreman.Close)
	return s
}

func (s *stubServices) writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "factsync.yaml")
	content := "puppetdb:\n  url: " + s.puppetdb.URL + "\n" +
		"foreman:\n  url: " + s.foreman.URL + "\n  username: admin\n  password: changeme\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "FACTSYNC_") || key == "OTEL_EXPORTER_OTLP_ENDPOINT" {
			t.Setenv(key, "")
		}
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSingleHostPrintsResponse(t *testing.T) {
	clearEnv(t)
	stubs := newStubServices(t)

	stdout, stderr, err := execute(t, "--config", stubs.writeConfig(t), "h1")
	require.NoError(t, err)

	assert.Equal(t, "{\n  \"id\": 1,\n  \"name\": \"h1\"\n}\n", stdout)
	require.Len(t, stubs.uploads, 1)
	assert.JSONEq(t, `{"name":"h1","certname":"h1","facts":{"os":"linux"}}`, stubs.uploads[0])
	assert.Contains(t, stderr, "tls verification is disabled")
}

func TestSingleHostUnknownHost(t *testing.T) {
	clearEnv(t)
	stubs := newStubServices(t)

	stdout, stderr, err := execute(t, "--config", stubs.writeConfig(t), "ghost")
	require.NoError(t, err)

	assert.Empty(t, stdout)
	require.Len(t, stubs.uploads, 1)
	assert.JSONEq(t, `{"name":"ghost","certname":"ghost","facts":{}}`, stubs.uploads[0])
	assert.Contains(t, stderr, "host ghost not found in puppetdb")
	assert.Contains(t, stderr, "could not push ghost")
}

func TestFullSyncSummary(t *testing.T) {
	clearEnv(t)
	stubs := newStubServices(t)

	stdout, _, err := execute(t, "--config", stubs.writeConfig(t), "--summary")
	require.NoError(t, err)

	assert.Contains(t, stdout, "(full) finished in")
	assert.Contains(t, stdout, "facts pushed:   1")
	assert.Contains(t, stdout, "hosts removed:  1")
	assert.Contains(t, stdout, "  old")
}

func TestFullSyncPrintsNothingByDefault(t *testing.T) {
	clearEnv(t)
	stubs := newStubServices(t)

	stdout, _, err := execute(t, "--config", stubs.writeConfig(t))
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRootCommandRejectsExtraArgs(t *testing.T) {
	clearEnv(t)
	_, _, err := execute(t, "h1", "h2")
	require.Error(t, err)
}

func TestMissingConfiguration(t *testing.T) {
	clearEnv(t)
	_, _, err := execute(t, "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "puppetdb url is required")
}

func TestPrintResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, foreman.Response{"name": "h1", "facts": map[string]any{"os": "linux"}}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "h1", decoded["name"])
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
	assert.Contains(t, buf.String(), "\n  \"facts\": {\n    \"os\": \"linux\"\n  },\n")
}

func TestFullSyncPublishesEventsToStream(t *testing.T) {
	clearEnv(t)
	stubs := newStubServices(t)

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	t.Setenv("FACTSYNC_NATS_URL", srv.ClientURL())
	t.Setenv("FACTSYNC_NATS_STREAM", "FACTSYNC_TEST")

	_, _, err = execute(t, "--config", stubs.writeConfig(t))
	require.NoError(t, err)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	js, err := nc.JetStream()
	require.NoError(t, err)

	info, err := js.StreamInfo("FACTSYNC_TEST")
	require.NoError(t, err)
	assert.Equal(t, []string{"factsync.>"}, info.Config.Subjects)
	assert.Equal(t, 7*24*time.Hour, info.Config.MaxAge)
	// facts for h1, removal of old, run summary
	assert.Equal(t, uint64(3), info.State.Msgs)

	msg, err := js.GetLastMsg("FACTSYNC_TEST", "factsync.hosts.removed")
	require.NoError(t, err)
	var removed map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &removed))
	assert.Equal(t, "old", removed["host"])
}
