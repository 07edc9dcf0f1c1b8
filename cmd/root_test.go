package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

func testSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<a href="/contact">contact</a>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<p>contact: jane.doe@example.com</p>")
	})
	return httptest.NewServer(mux)
}

var fastFlags = []string{"--log-level", "error", "--rate", "1000", "--burst", "100"}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(append(append([]string{}, fastFlags...), args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestExecute_ArgumentCount(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no target"},
		{name: "two targets", args: []string{"http://a.test/", "http://b.test/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := execute(tt.args, &stdout, &stderr)

			require.ErrorIs(t, err, errUsage)
			assert.Contains(t, stderr.String(), "Usage: siteprobe <target_url>")
			assert.NotContains(t, stdout.String(), "Starting security scan")
		})
	}
}

func TestExecute_Scan(t *testing.T) {
	server := testSite()
	defer server.Close()

	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	stdout, _, err := run(t, "--output", reportPath, "--format", "yaml", server.URL+"/")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Starting security scan of "+server.URL+"/")
	assert.Contains(t, stdout, "[VULNERABILITY FOUND]")
	assert.Contains(t, stdout, "info_type: email")
	assert.Contains(t, stdout, "Scan Complete!")
	assert.Contains(t, stdout, "Total URLs scanned: 2")
	// one email plus one CSRF finding per page
	assert.Contains(t, stdout, "Vulnerabilities found: 3")
	assert.Contains(t, stdout, "Results saved to: "+reportPath)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, server.URL+"/", doc["target"])
	assert.Len(t, doc["findings"], 3)
}

func TestExecute_ProgressGoesToStderr(t *testing.T) {
	server := testSite()
	defer server.Close()

	stdout, stderr, err := run(t, "--progress", server.URL+"/")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Probing discovered URLs")
	assert.NotContains(t, stdout, "Probing discovered URLs")

	_, stderr, err = run(t, server.URL+"/")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestExecute_UnreachableTargetExitsCleanly(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL + "/"
	server.Close()

	for _, tt := range []string{target, "not a url"} {
		t.Run(tt, func(t *testing.T) {
			stdout, _, err := run(t, tt)
			require.NoError(t, err)
			assert.Contains(t, stdout, "Total URLs scanned: 0")
			assert.Contains(t, stdout, "Vulnerabilities found: 0")
		})
	}
}

func TestExecute_ConfigFileAndEnv(t *testing.T) {
	server := testSite()
	defer server.Close()

	cfgPath := filepath.Join(t.TempDir(), "siteprobe.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("crawler:\n  max_depth: 0\n"), 0o644))

	stdout, _, err := run(t, "--config", cfgPath, server.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Total URLs scanned: 1")

	t.Setenv("SITEPROBE_WORKER_COUNT", "0")
	_, stderr, err := run(t, server.URL+"/")
	require.Error(t, err)
	assert.Contains(t, stderr, "worker.count")
}

func TestExecute_BadConfigFile(t *testing.T) {
	_, stderr, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "http://t.test/")
	require.Error(t, err)
	assert.Contains(t, stderr, "failed to read config file")
}
