// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/leapstack-labs/remotesql/internal/cli/config"
	"github.com/leapstack-labs/remotesql/internal/cli/output"
)

// SetupTestProject creates a temporary project with a remotesql.yaml holding
// configYAML and a seeds directory with one CSV file, makes it the working
// directory and resets loaded configuration.
func SetupTestProject(t *testing.T, configYAML string) string {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "seeds"), 0o755); err != nil {
		t.Fatalf("failed to create seeds directory: %v", err)
	}

	rawCustomers := `id,name
1,Alice
2,Bob`
	if err := os.WriteFile(filepath.Join(tmpDir, "seeds", "raw_customers.csv"), []byte(rawCustomers), 0o600); err != nil {
		t.Fatalf("failed to create raw_customers.csv: %v", err)
	}

	if configYAML != "" {
		if err := os.WriteFile(filepath.Join(tmpDir, "remotesql.yaml"), []byte(configYAML), 0o600); err != nil {
			t.Fatalf("failed to create remotesql.yaml: %v", err)
		}
	}

	t.Chdir(tmpDir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	return tmpDir
}

// Remote is a fake remote endpoint answering every query with a fixed
// status and body.
type Remote struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
}

// NewRemote starts a Remote, closed when the test ends.
func NewRemote(t *testing.T, status int, body string) *Remote {
	t.Helper()
	r := &Remote{}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.queries = append(r.queries, string(b))
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(r.Close)
	return r
}

// Queries returns the request bodies received so far.
func (r *Remote) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
